package ports

import "github.com/qrconnect/qrconnect-client/internal/core/domain"

// Transport owns the single real-time connection to the server: connect,
// bounded automatic reconnection, and room membership. It performs no
// ordering or buffering of its own; reconciliation is the synchronizer's
// job. Room mutation goes exclusively through the session facade's
// identity-change cascade.
type Transport interface {
	// Start begins connecting in the background. Idempotent.
	Start()
	// Reconnect forcibly drops and re-establishes the connection; the
	// escape hatch once automatic retries are exhausted.
	Reconnect()
	State() domain.TransportState
	// Join subscribes to a user's room. Joining an already-joined room is
	// a no-op. Membership survives automatic reconnection.
	Join(userID string)
	// Leave unsubscribes from a room; LeaveAll clears membership so no
	// event from a stale room is delivered afterwards.
	Leave(userID string)
	LeaveAll()
	Rooms() []string
	// Send emits an outbound message envelope. Failure to emit never rolls
	// back REST-confirmed state.
	Send(out domain.OutboundMessage) error
	// Events delivers inbound pushed messages in server delivery order.
	Events() <-chan domain.Message
	Close() error
}
