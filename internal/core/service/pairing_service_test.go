package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
)

func loggedInSession(t *testing.T, api *stubAPI) *SessionService {
	t.Helper()
	api.loginToken = "tok-1"
	api.loginIdentity = testIdentity()
	svc := NewSessionService(api, &stubCreds{}, zerolog.Nop())
	if _, err := svc.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("login fixture failed: %v", err)
	}
	return svc
}

func payloadFor(t *testing.T, userID, name, email string) string {
	t.Helper()
	b, err := json.Marshal(domain.PairingPayload{UserID: userID, Name: name, Email: email})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(b)
}

func TestPairingService_Pair_Success(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	svc := NewPairingService(api, session, zerolog.Nop())

	conn, err := svc.Pair(context.Background(), payloadFor(t, "b", "Bob", "bob@example.com"))
	if err != nil {
		t.Fatalf("Pair returned error: %v", err)
	}
	if conn.PeerID != "b" || conn.PeerName != "Bob" {
		t.Fatalf("unexpected connection: %+v", conn)
	}
	if conn.ConnectedAt.IsZero() {
		t.Fatalf("expected connectedAt to be set")
	}

	conns := svc.Connections()
	if len(conns) != 1 || conns[0].PeerID != "b" {
		t.Fatalf("expected exactly one connection for b, got %+v", conns)
	}
	if len(api.createdPairs) != 1 || api.createdPairs[0] != [2]string{"a", "b"} {
		t.Fatalf("unexpected pairing request: %+v", api.createdPairs)
	}
}

func TestPairingService_Pair_MalformedPayload(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	svc := NewPairingService(api, session, zerolog.Nop())

	for _, raw := range []string{
		"not json at all",
		`{"userId":"b"}`,
		`{"userId":"b","name":"Bob","email":"not-an-email"}`,
		`[]`,
	} {
		if _, err := svc.Pair(context.Background(), raw); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("payload %q: expected ErrInvalidPayload, got %v", raw, err)
		}
	}
	if len(api.createdPairs) != 0 {
		t.Fatalf("validation failures must not reach the REST collaborator")
	}
}

func TestPairingService_Pair_Self(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	svc := NewPairingService(api, session, zerolog.Nop())

	_, err := svc.Pair(context.Background(), payloadFor(t, "a", "Alice", "alice@example.com"))
	if !errors.Is(err, domain.ErrSelfPairing) {
		t.Fatalf("expected ErrSelfPairing, got %v", err)
	}
	if len(api.createdPairs) != 0 {
		t.Fatalf("self pairing must never call the REST collaborator")
	}
}

func TestPairingService_Pair_RepeatScanNoDuplicate(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	svc := NewPairingService(api, session, zerolog.Nop())

	raw := payloadFor(t, "b", "Bob", "bob@example.com")
	if _, err := svc.Pair(context.Background(), raw); err != nil {
		t.Fatalf("first pair failed: %v", err)
	}
	conn, err := svc.Pair(context.Background(), raw)
	if err != nil {
		t.Fatalf("repeat pair failed: %v", err)
	}
	if conn.PeerID != "b" {
		t.Fatalf("unexpected connection: %+v", conn)
	}
	if got := len(svc.Connections()); got != 1 {
		t.Fatalf("expected one connection after repeat scan, got %d", got)
	}
	if len(api.createdPairs) != 1 {
		t.Fatalf("repeat scan must not issue a second pairing request")
	}
}

func TestPairingService_Pair_RESTFailureReported(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	api.createConnErr = domain.ErrNetwork
	svc := NewPairingService(api, session, zerolog.Nop())

	_, err := svc.Pair(context.Background(), payloadFor(t, "b", "Bob", "bob@example.com"))
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error to surface verbatim, got %v", err)
	}
	if got := len(svc.Connections()); got != 0 {
		t.Fatalf("failed pairing must not append locally, got %d connections", got)
	}
}

func TestPairingService_InsertionOrderPreserved(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	svc := NewPairingService(api, session, zerolog.Nop())

	for _, peer := range []string{"b", "c", "d"} {
		if _, err := svc.Pair(context.Background(), payloadFor(t, peer, "Peer "+peer, peer+"@example.com")); err != nil {
			t.Fatalf("pair %s failed: %v", peer, err)
		}
	}

	conns := svc.Connections()
	if len(conns) != 3 {
		t.Fatalf("expected three connections, got %d", len(conns))
	}
	for i, want := range []string{"b", "c", "d"} {
		if conns[i].PeerID != want {
			t.Fatalf("connection %d: expected %s, got %s", i, want, conns[i].PeerID)
		}
	}
}

func TestPairingService_LoadConnections(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	api.connections = []domain.Connection{
		{PeerID: "b", PeerName: "Bob", PeerEmail: "bob@example.com", ConnectedAt: time.Now().UTC()},
	}
	svc := NewPairingService(api, session, zerolog.Nop())

	if err := svc.LoadConnections(context.Background()); err != nil {
		t.Fatalf("LoadConnections failed: %v", err)
	}
	if conns := svc.Connections(); len(conns) != 1 || conns[0].PeerID != "b" {
		t.Fatalf("unexpected connections: %+v", conns)
	}
}

func TestPairingService_OwnPayloadRoundTrips(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	svc := NewPairingService(api, session, zerolog.Nop())

	raw, err := svc.OwnPayload()
	if err != nil {
		t.Fatalf("OwnPayload failed: %v", err)
	}
	payload, err := svc.DecodePayload(raw)
	if err != nil {
		t.Fatalf("own payload must decode cleanly: %v", err)
	}
	if payload.UserID != "a" || payload.Email != "alice@example.com" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestPairingService_Reset(t *testing.T) {
	api := newStubAPI()
	session := loggedInSession(t, api)
	svc := NewPairingService(api, session, zerolog.Nop())

	if _, err := svc.Pair(context.Background(), payloadFor(t, "b", "Bob", "bob@example.com")); err != nil {
		t.Fatalf("pair failed: %v", err)
	}
	svc.Reset()
	if got := len(svc.Connections()); got != 0 {
		t.Fatalf("expected empty collection after reset, got %d", got)
	}
}

func TestPairingService_NotAuthenticated(t *testing.T) {
	api := newStubAPI()
	session := NewSessionService(api, &stubCreds{}, zerolog.Nop())
	svc := NewPairingService(api, session, zerolog.Nop())

	if _, err := svc.Pair(context.Background(), payloadFor(t, "b", "Bob", "bob@example.com")); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
