package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
	"github.com/qrconnect/qrconnect-client/internal/core/ports"
)

// Client is the session facade: the single object the host application
// depends on. It composes the session, pairing, and message services around
// one explicitly owned transport channel (created by the caller, closed via
// Close — never ambient process state), and runs the inbound event loop
// that funnels push events into the synchronizer.
type Client struct {
	Session   *SessionService
	Pairing   *PairingService
	Messages  *MessageService
	transport ports.Transport
	log       zerolog.Logger
	done      chan struct{}
}

func NewClient(api ports.API, creds ports.CredentialStore, transport ports.Transport, log zerolog.Logger) *Client {
	session := NewSessionService(api, creds, log.With().Str("component", "session").Logger())
	c := &Client{
		Session:   session,
		Pairing:   NewPairingService(api, session, log.With().Str("component", "pairing").Logger()),
		Messages:  NewMessageService(api, transport, session, log.With().Str("component", "messages").Logger()),
		transport: transport,
		log:       log,
		done:      make(chan struct{}),
	}

	transport.Start()
	go c.pumpEvents()
	return c
}

// pumpEvents forwards inbound push messages into the synchronizer in
// delivery order until the transport's event channel closes.
func (c *Client) pumpEvents() {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.transport.Events():
			if !ok {
				return
			}
			c.Messages.Inbound(msg)
		}
	}
}

// Restore resumes a persisted session, then brings the realtime channel and
// connection cache in line with the restored identity.
func (c *Client) Restore(ctx context.Context) (*domain.Identity, error) {
	identity, err := c.Session.Restore(ctx)
	if err != nil || identity == nil {
		return identity, err
	}
	c.afterLogin(ctx, identity)
	return identity, nil
}

// Login authenticates and joins the identity's room. A login that follows a
// previous session on the same device replaces any stale room membership.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	identity, err := c.Session.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.afterLogin(ctx, identity)
	return identity, nil
}

func (c *Client) afterLogin(ctx context.Context, identity *domain.Identity) {
	c.transport.LeaveAll()
	c.transport.Join(identity.ID)
	if err := c.Pairing.LoadConnections(ctx); err != nil {
		c.log.Warn().Err(err).Msg("could not load connections")
	}
}

// Logout clears the session and cascades: the channel leaves all rooms and
// both per-user caches are dropped. Stale state must never leak across
// identities on the same device.
func (c *Client) Logout() {
	c.transport.LeaveAll()
	c.Session.Logout()
	c.Messages.Reset()
	c.Pairing.Reset()
}

// Pair converts a scanned payload into a connection record.
func (c *Client) Pair(ctx context.Context, raw string) (*domain.Connection, error) {
	return c.Pairing.Pair(ctx, raw)
}

// Send delivers a message to a connection.
func (c *Client) Send(ctx context.Context, connectionID, content string) (*domain.Message, error) {
	return c.Messages.Send(ctx, connectionID, content)
}

// Reconnect forcibly re-establishes the realtime channel. Escape hatch for
// when automatic retries are exhausted.
func (c *Client) Reconnect() {
	c.transport.Reconnect()
}

// TransportState exposes the realtime channel's connection state.
func (c *Client) TransportState() domain.TransportState {
	return c.transport.State()
}

// Close tears the facade down and releases the transport connection.
func (c *Client) Close() error {
	close(c.done)
	return c.transport.Close()
}
