package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
	"github.com/qrconnect/qrconnect-client/internal/core/ports"
	"github.com/qrconnect/qrconnect-client/internal/metrics"
)

// MessageService reconciles REST-fetched history with push-delivered events
// into one deduplicated view per connection, and mediates outgoing sends.
// It owns the message collection exclusively; everything it hands out is a
// copy.
type MessageService struct {
	api       ports.API
	transport ports.Transport
	session   *SessionService
	log       zerolog.Logger

	mu     sync.RWMutex
	byConn map[string][]domain.Message
	seen   map[string]bool // message ids already present
	loaded map[string]bool // connections whose history was fetched
}

func NewMessageService(api ports.API, transport ports.Transport, session *SessionService, log zerolog.Logger) *MessageService {
	return &MessageService{
		api:       api,
		transport: transport,
		session:   session,
		log:       log,
		byConn:    make(map[string][]domain.Message),
		seen:      make(map[string]bool),
		loaded:    make(map[string]bool),
	}
}

// LoadHistory fetches a connection's message history from the REST
// collaborator and merges it by id. Re-invocation refreshes the cache.
func (m *MessageService) LoadHistory(ctx context.Context, connectionID string) error {
	history, err := m.api.ListMessages(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	m.mu.Lock()
	for _, msg := range history {
		// History was requested for this thread; normalise the key so a
		// peer's messages (stamped with our id as their connectionId)
		// land in the same view.
		msg.ConnectionID = connectionID
		m.appendLocked(msg)
	}
	m.loaded[connectionID] = true
	m.mu.Unlock()

	m.log.Debug().Str("connection_id", connectionID).Int("count", len(history)).Msg("history loaded")
	return nil
}

// HistoryLoaded reports whether LoadHistory already ran for a connection
// this session.
func (m *MessageService) HistoryLoaded(connectionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded[connectionID]
}

// Send persists a message via REST and emits it on the realtime channel for
// delivery to the peer. The message is appended locally as pending before
// the network round trip and reconciled to the server's confirmed record;
// the local view therefore always shows the send by the time this returns.
// A socket emit failure is logged but never rolls back the confirmed send.
func (m *MessageService) Send(ctx context.Context, connectionID, content string) (*domain.Message, error) {
	identity := m.session.Identity()
	if identity == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	pending := domain.Message{
		ID:           "pending-" + uuid.NewString(),
		ConnectionID: connectionID,
		SenderID:     identity.ID,
		Content:      content,
		Timestamp:    time.Now().UTC(),
		Status:       domain.MessagePending,
	}

	m.mu.Lock()
	m.appendLocked(pending)
	m.mu.Unlock()

	confirmed, err := m.api.CreateMessage(ctx, connectionID, identity.ID, content)
	if err != nil {
		// Offline queueing is out of scope: the optimistic entry goes
		// away with the failed send.
		m.remove(pending.ID)
		return nil, err
	}
	confirmed.Status = domain.MessageConfirmed

	m.mu.Lock()
	m.replaceLocked(pending.ID, *confirmed)
	m.mu.Unlock()

	metrics.MessagesSentTotal.Inc()

	if err := m.transport.Send(domain.OutboundMessage{
		RecipientID: connectionID,
		Message:     *confirmed,
	}); err != nil {
		m.log.Warn().Err(err).Str("message_id", confirmed.ID).Msg("realtime emit failed, send already confirmed")
	}

	return confirmed, nil
}

// Inbound reconciles a push-delivered message into the collection. A
// message whose id is already present — typically the sender's own echo —
// is discarded, not duplicated.
func (m *MessageService) Inbound(msg domain.Message) {
	msg.Status = domain.MessageConfirmed

	// A connection id is the peer's user id from each endpoint's point of
	// view. A message pushed by a peer is stamped with *our* id as its
	// connectionId, so the thread it belongs to here is the sender's.
	if identity := m.session.Identity(); identity != nil && msg.SenderID != identity.ID {
		msg.ConnectionID = msg.SenderID
	}

	m.mu.Lock()
	applied := m.appendLocked(msg)
	m.mu.Unlock()

	if applied {
		metrics.MessagesReceivedTotal.WithLabelValues("applied").Inc()
	} else {
		metrics.MessagesReceivedTotal.WithLabelValues("duplicate").Inc()
		m.log.Debug().Str("message_id", msg.ID).Msg("duplicate push discarded")
	}
}

// Messages returns the per-connection view: a copy, sorted by timestamp
// ascending at read time. The underlying store is not required to be
// pre-sorted.
func (m *MessageService) Messages(connectionID string) []domain.Message {
	m.mu.RLock()
	view := append([]domain.Message(nil), m.byConn[connectionID]...)
	m.mu.RUnlock()

	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Timestamp.Before(view[j].Timestamp)
	})
	return view
}

// Reset drops every cached message. Part of the logout cascade.
func (m *MessageService) Reset() {
	m.mu.Lock()
	m.byConn = make(map[string][]domain.Message)
	m.seen = make(map[string]bool)
	m.loaded = make(map[string]bool)
	m.mu.Unlock()
}

// appendLocked inserts a message unless its id is already present.
// Callers hold m.mu.
func (m *MessageService) appendLocked(msg domain.Message) bool {
	if m.seen[msg.ID] {
		return false
	}
	m.seen[msg.ID] = true
	m.byConn[msg.ConnectionID] = append(m.byConn[msg.ConnectionID], msg)
	return true
}

// replaceLocked swaps the optimistic pending entry for the server's
// confirmed record, keeping exactly one entry. If the confirmed id already
// arrived via the push channel, the pending entry is simply dropped. When
// the pending entry itself is gone — Reset ran while the send was in
// flight — the confirmed record is discarded too: a cleared store must
// stay empty.
func (m *MessageService) replaceLocked(pendingID string, confirmed domain.Message) {
	delete(m.seen, pendingID)
	msgs := m.byConn[confirmed.ConnectionID]
	for i, msg := range msgs {
		if msg.ID == pendingID {
			if m.seen[confirmed.ID] {
				m.byConn[confirmed.ConnectionID] = append(msgs[:i], msgs[i+1:]...)
				return
			}
			m.seen[confirmed.ID] = true
			msgs[i] = confirmed
			return
		}
	}
	m.log.Debug().Str("message_id", confirmed.ID).Msg("confirmed send discarded, store was reset mid-flight")
}

func (m *MessageService) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	for connID, msgs := range m.byConn {
		for i, msg := range msgs {
			if msg.ID == id {
				m.byConn[connID] = append(msgs[:i], msgs[i+1:]...)
				return
			}
		}
	}
}
