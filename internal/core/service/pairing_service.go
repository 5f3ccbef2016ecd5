package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
	"github.com/qrconnect/qrconnect-client/internal/core/ports"
	"github.com/qrconnect/qrconnect-client/internal/metrics"
)

// PairingService turns scanned payloads into connection records and owns
// the local connection collection. The collection is append-only in pairing
// order and cleared only on logout.
type PairingService struct {
	api      ports.API
	session  *SessionService
	validate *validator.Validate
	log      zerolog.Logger

	mu          sync.RWMutex
	connections []domain.Connection
}

func NewPairingService(api ports.API, session *SessionService, log zerolog.Logger) *PairingService {
	return &PairingService{
		api:      api,
		session:  session,
		validate: validator.New(),
		log:      log,
	}
}

// DecodePayload strictly parses the raw text of a scanned code. Anything
// that is not the expected {userId,name,email} shape yields
// ErrInvalidPayload so the caller can keep the scanning session alive.
func (p *PairingService) DecodePayload(raw string) (*domain.PairingPayload, error) {
	var payload domain.PairingPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := p.validate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return &payload, nil
}

// Pair converts a scanned payload into a confirmed connection. Validation
// failures never reach the network; REST failures are reported verbatim and
// never silently retried — pairing is an explicit, user-visible action.
func (p *PairingService) Pair(ctx context.Context, raw string) (*domain.Connection, error) {
	identity := p.session.Identity()
	if identity == nil {
		return nil, domain.ErrNotAuthenticated
	}

	payload, err := p.DecodePayload(raw)
	if err != nil {
		metrics.PairingsTotal.WithLabelValues("invalid_payload").Inc()
		return nil, err
	}

	if payload.UserID == identity.ID {
		metrics.PairingsTotal.WithLabelValues("self").Inc()
		return nil, domain.ErrSelfPairing
	}

	// Repeat scans of a known peer short-circuit locally; the server is
	// idempotent for pairing but the collection holds one record per peer.
	if existing := p.find(payload.UserID); existing != nil {
		p.log.Debug().Str("peer_id", payload.UserID).Msg("already connected")
		return existing, nil
	}

	if err := p.api.CreateConnection(ctx, identity.ID, payload.UserID); err != nil {
		metrics.PairingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	conn := domain.Connection{
		PeerID:      payload.UserID,
		PeerName:    payload.Name,
		PeerEmail:   payload.Email,
		ConnectedAt: time.Now().UTC(),
	}

	p.mu.Lock()
	p.connections = append(p.connections, conn)
	p.mu.Unlock()

	metrics.PairingsTotal.WithLabelValues("paired").Inc()
	p.log.Info().Str("peer_id", conn.PeerID).Msg("connection paired")
	return &conn, nil
}

// LoadConnections replaces the collection with the server's view for the
// current identity. Called by the facade after login or restore.
func (p *PairingService) LoadConnections(ctx context.Context) error {
	identity := p.session.Identity()
	if identity == nil {
		return domain.ErrNotAuthenticated
	}

	conns, err := p.api.ListConnections(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("load connections: %w", err)
	}

	p.mu.Lock()
	p.connections = append([]domain.Connection(nil), conns...)
	p.mu.Unlock()

	p.log.Debug().Int("count", len(conns)).Msg("connections loaded")
	return nil
}

// Connections returns a read-only snapshot in pairing order.
func (p *PairingService) Connections() []domain.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Connection(nil), p.connections...)
}

// OwnPayload is the identity's own pairing tuple, JSON-encoded for the
// external QR renderer. Rendering itself is out of scope.
func (p *PairingService) OwnPayload() (string, error) {
	identity := p.session.Identity()
	if identity == nil {
		return "", domain.ErrNotAuthenticated
	}
	b, err := json.Marshal(domain.PairingPayload{
		UserID: identity.ID,
		Name:   identity.Name,
		Email:  identity.Email,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Reset drops the cached collection. Part of the logout cascade.
func (p *PairingService) Reset() {
	p.mu.Lock()
	p.connections = nil
	p.mu.Unlock()
}

func (p *PairingService) find(peerID string) *domain.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.connections {
		if c.PeerID == peerID {
			clone := c
			return &clone
		}
	}
	return nil
}
