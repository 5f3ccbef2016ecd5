package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
)

func newClientFixture(t *testing.T) (*stubAPI, *stubTransport, *Client) {
	t.Helper()
	api := newStubAPI()
	api.loginToken = "tok-1"
	api.loginIdentity = testIdentity()
	transport := newStubTransport()
	client := NewClient(api, &stubCreds{}, transport, zerolog.Nop())
	t.Cleanup(func() { _ = client.Close() })
	return api, transport, client
}

func TestClient_LoginJoinsRoomAndLoadsConnections(t *testing.T) {
	api, transport, client := newClientFixture(t)
	api.connections = []domain.Connection{
		{PeerID: "b", PeerName: "Bob", PeerEmail: "bob@example.com", ConnectedAt: time.Now().UTC()},
	}

	if _, err := client.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	rooms := transport.Rooms()
	if len(rooms) != 1 || rooms[0] != "a" {
		t.Fatalf("expected room a joined, got %v", rooms)
	}
	if conns := client.Pairing.Connections(); len(conns) != 1 || conns[0].PeerID != "b" {
		t.Fatalf("expected connections loaded, got %+v", conns)
	}
}

func TestClient_SecondLoginReplacesRoom(t *testing.T) {
	api, transport, client := newClientFixture(t)

	if _, err := client.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	client.Logout()

	api.loginIdentity = &domain.Identity{ID: "c", Name: "Carol", Email: "carol@example.com"}
	if _, err := client.Login(context.Background(), "carol@example.com", "pw"); err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	rooms := transport.Rooms()
	if len(rooms) != 1 || rooms[0] != "c" {
		t.Fatalf("expected only the new identity's room, got %v", rooms)
	}
}

func TestClient_LogoutCascades(t *testing.T) {
	_, transport, client := newClientFixture(t)

	if _, err := client.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := client.Pair(context.Background(), payloadFor(t, "b", "Bob", "bob@example.com")); err != nil {
		t.Fatalf("pair failed: %v", err)
	}
	if _, err := client.Send(context.Background(), "b", "hi"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	client.Logout()

	if conns := client.Pairing.Connections(); len(conns) != 0 {
		t.Fatalf("expected empty connections after logout, got %+v", conns)
	}
	if msgs := client.Messages.Messages("b"); len(msgs) != 0 {
		t.Fatalf("expected empty messages after logout, got %+v", msgs)
	}
	if rooms := transport.Rooms(); len(rooms) != 0 {
		t.Fatalf("expected no joined rooms after logout, got %v", rooms)
	}
	if client.Session.Identity() != nil {
		t.Fatalf("expected identity cleared after logout")
	}
}

func TestClient_PushEventsReachTheView(t *testing.T) {
	_, transport, client := newClientFixture(t)

	if _, err := client.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	transport.events <- domain.Message{
		ID:           "m-1",
		ConnectionID: "a",
		SenderID:     "b",
		Content:      "hello",
		Timestamp:    time.Now().UTC(),
	}

	deadline := time.After(2 * time.Second)
	for {
		if msgs := client.Messages.Messages("b"); len(msgs) == 1 {
			if msgs[0].Content != "hello" {
				t.Fatalf("unexpected message: %+v", msgs[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("push event never reached the message view")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
