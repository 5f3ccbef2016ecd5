package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
)

// ---------------------------------------------------------------------------
// In-memory stub collaborators shared by the service tests
// ---------------------------------------------------------------------------

type stubAPI struct {
	mu sync.Mutex

	token string // last token set via SetToken

	loginToken    string
	loginIdentity *domain.Identity
	loginErr      error
	loginCalls    int

	currentIdentity *domain.Identity
	currentErr      error

	connections    []domain.Connection
	createConnErr  error
	createdPairs   [][2]string
	history        map[string][]domain.Message
	createMsgErr   error
	createMsgGate  chan struct{} // when set, CreateMessage waits on it
	createMsgCalls int
	nextMsgID      int
}

func newStubAPI() *stubAPI {
	return &stubAPI{history: make(map[string][]domain.Message)}
}

func (a *stubAPI) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *stubAPI) Login(_ context.Context, email, password string) (string, *domain.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginCalls++
	if a.loginErr != nil {
		return "", nil, a.loginErr
	}
	clone := *a.loginIdentity
	return a.loginToken, &clone, nil
}

func (a *stubAPI) Register(_ context.Context, name, email, _ string) (*domain.Identity, error) {
	return &domain.Identity{ID: "new-" + name, Name: name, Email: email}, nil
}

func (a *stubAPI) CurrentUser(context.Context) (*domain.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentErr != nil {
		return nil, a.currentErr
	}
	clone := *a.currentIdentity
	return &clone, nil
}

func (a *stubAPI) ListConnections(context.Context, string) ([]domain.Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Connection(nil), a.connections...), nil
}

func (a *stubAPI) CreateConnection(_ context.Context, user1ID, user2ID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createConnErr != nil {
		return a.createConnErr
	}
	a.createdPairs = append(a.createdPairs, [2]string{user1ID, user2ID})
	return nil
}

func (a *stubAPI) CreateMessage(_ context.Context, connectionID, senderID, content string) (*domain.Message, error) {
	if a.createMsgGate != nil {
		<-a.createMsgGate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.createMsgCalls++
	if a.createMsgErr != nil {
		return nil, a.createMsgErr
	}
	a.nextMsgID++
	return &domain.Message{
		ID:           fmt.Sprintf("srv-%d", a.nextMsgID),
		ConnectionID: connectionID,
		SenderID:     senderID,
		Content:      content,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (a *stubAPI) ListMessages(_ context.Context, connectionID string) ([]domain.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Message(nil), a.history[connectionID]...), nil
}

type stubCreds struct {
	mu    sync.Mutex
	token string
}

func (s *stubCreds) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *stubCreds) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *stubCreds) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

type stubTransport struct {
	mu      sync.Mutex
	rooms   map[string]bool
	sent    []domain.OutboundMessage
	sendErr error
	events  chan domain.Message
	state   domain.TransportState
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		rooms:  make(map[string]bool),
		events: make(chan domain.Message, 16),
		state:  domain.TransportConnected,
	}
}

func (t *stubTransport) Start()     {}
func (t *stubTransport) Reconnect() {}

func (t *stubTransport) State() domain.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *stubTransport) Join(userID string) {
	t.mu.Lock()
	t.rooms[userID] = true
	t.mu.Unlock()
}

func (t *stubTransport) Leave(userID string) {
	t.mu.Lock()
	delete(t.rooms, userID)
	t.mu.Unlock()
}

func (t *stubTransport) LeaveAll() {
	t.mu.Lock()
	t.rooms = make(map[string]bool)
	t.mu.Unlock()
}

func (t *stubTransport) Rooms() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms := make([]string, 0, len(t.rooms))
	for room := range t.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (t *stubTransport) Send(out domain.OutboundMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, out)
	return nil
}

func (t *stubTransport) Events() <-chan domain.Message { return t.events }

func (t *stubTransport) Close() error {
	close(t.events)
	return nil
}

func (t *stubTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
