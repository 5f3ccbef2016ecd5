// Package socket implements the realtime transport channel over a single
// websocket connection: connect, bounded automatic reconnection, room
// membership, and a typed inbound event stream.
package socket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
	"github.com/qrconnect/qrconnect-client/internal/metrics"
)

const (
	defaultAttempts = 5
	defaultDelay    = time.Second
	writeWait       = 10 * time.Second
	eventBuffer     = 64
)

// Config makes the reconnect policy an explicit parameter of the channel
// rather than a hidden library default.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// Attempts bounds each automatic reconnect loop. Defaults to 5.
	Attempts int
	// Delay is the fixed wait between attempts. Defaults to 1s.
	Delay time.Duration
}

// frame is the wire envelope for every message in either direction.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const (
	eventJoin        = "join"
	eventLeave       = "leave"
	eventSendMessage = "sendMessage"
	eventNewMessage  = "newMessage"
)

// Channel owns one physical connection shared by all consumers. It performs
// no ordering or buffering beyond the event channel itself; reconciliation
// belongs to the message synchronizer. Exhausting the retry budget parks
// the channel Disconnected until Reconnect is invoked.
type Channel struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	state   domain.TransportState
	conn    *websocket.Conn
	rooms   map[string]bool
	gen     int // bumped on every deliberate drop; stale pumps see it and exit
	started bool
	closed  bool

	wmu    sync.Mutex // gorilla allows one concurrent writer
	events chan domain.Message
	done   chan struct{} // closed by Close; unblocks a pump parked on events
}

func NewChannel(cfg Config, log zerolog.Logger) *Channel {
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDelay
	}
	return &Channel{
		cfg:    cfg,
		log:    log,
		state:  domain.TransportDisconnected,
		rooms:  make(map[string]bool),
		events: make(chan domain.Message, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Start begins connecting in the background. Idempotent.
func (c *Channel) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	gen := c.gen
	c.mu.Unlock()

	go c.connectLoop(gen)
}

// Reconnect forcibly drops any live connection and starts a fresh bounded
// connect loop. The escape hatch once automatic retries are exhausted.
func (c *Channel) Reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.gen++
	gen := c.gen
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	go c.connectLoop(gen)
}

// State returns the current connection state.
func (c *Channel) State() domain.TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// connectLoop dials with the configured bounded retry policy. Membership
// held before the drop is re-established on success.
func (c *Channel) connectLoop(gen int) {
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		c.mu.Lock()
		if c.closed || c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.state = domain.TransportConnecting
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, nil)
		if err == nil {
			c.adopt(conn, gen)
			return
		}

		c.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.cfg.Attempts).Msg("socket connect failed")
		metrics.SocketReconnectsTotal.Inc()

		if attempt < c.cfg.Attempts {
			time.Sleep(c.cfg.Delay)
		}
	}

	c.mu.Lock()
	if !c.closed && c.gen == gen {
		c.state = domain.TransportDisconnected
	}
	c.mu.Unlock()
	c.log.Error().Msg("socket retries exhausted, manual reconnect required")
}

// adopt installs a freshly dialed connection, replays room membership, and
// launches its read pump.
func (c *Channel) adopt(conn *websocket.Conn, gen int) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = domain.TransportConnected
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	metrics.SocketConnected.Set(1)
	c.log.Info().Str("url", c.cfg.URL).Msg("socket connected")

	for _, room := range rooms {
		if err := c.writeFrame(conn, eventJoin, room); err != nil {
			c.log.Warn().Err(err).Str("room", room).Msg("room rejoin failed")
		}
	}

	go c.readPump(conn, gen)
}

// readPump delivers inbound frames in arrival order until the connection
// drops, then hands off to a fresh connect loop.
func (c *Channel) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("undecodable socket frame dropped")
			continue
		}
		if f.Event != eventNewMessage {
			continue
		}

		var msg domain.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed newMessage payload dropped")
			continue
		}

		c.mu.Lock()
		deliver := c.gen == gen && len(c.rooms) > 0
		c.mu.Unlock()
		if !deliver {
			// Stale connection or no joined room (post-logout): the
			// event must not reach the synchronizer.
			continue
		}

		select {
		case c.events <- msg:
		case <-c.done:
			return
		}
	}

	metrics.SocketConnected.Set(0)

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	nextGen := c.gen
	c.conn = nil
	c.state = domain.TransportConnecting
	c.mu.Unlock()

	c.log.Warn().Msg("socket dropped, reconnecting")
	go c.connectLoop(nextGen)
}

// Join subscribes to a user's room. Joining an already-joined room is a
// no-op. Membership is recorded first so a racing reconnect replays it.
func (c *Channel) Join(userID string) {
	c.mu.Lock()
	if c.rooms[userID] {
		c.mu.Unlock()
		return
	}
	c.rooms[userID] = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.writeFrame(conn, eventJoin, userID); err != nil {
			c.log.Warn().Err(err).Str("room", userID).Msg("join emit failed")
		}
	}
}

// Leave unsubscribes from a room.
func (c *Channel) Leave(userID string) {
	c.mu.Lock()
	if !c.rooms[userID] {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, userID)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.writeFrame(conn, eventLeave, userID); err != nil {
			c.log.Warn().Err(err).Str("room", userID).Msg("leave emit failed")
		}
	}
}

// LeaveAll clears membership, part of the logout cascade. Inbound events
// are suppressed from this point on even if the server keeps pushing.
func (c *Channel) LeaveAll() {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.rooms = make(map[string]bool)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	for _, room := range rooms {
		if err := c.writeFrame(conn, eventLeave, room); err != nil {
			c.log.Warn().Err(err).Str("room", room).Msg("leave emit failed")
		}
	}
}

// Rooms returns a snapshot of current membership.
func (c *Channel) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Send emits an outbound message envelope on the live connection.
func (c *Channel) Send(out domain.OutboundMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNetwork
	}
	return c.writeFrame(conn, eventSendMessage, out)
}

// Events delivers inbound pushed messages in server delivery order.
func (c *Channel) Events() <-chan domain.Message {
	return c.events
}

// Close tears the channel down permanently.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	conn := c.conn
	c.conn = nil
	c.state = domain.TransportDisconnected
	c.mu.Unlock()

	close(c.done)

	metrics.SocketConnected.Set(0)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) writeFrame(conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	return nil
}
