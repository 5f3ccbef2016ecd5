package domain

// TransportState is the live socket's connection state.
type TransportState string

const (
	TransportDisconnected TransportState = "disconnected"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
)

// OutboundMessage is the envelope emitted on the socket when a message is
// sent, addressed to the recipient's room.
type OutboundMessage struct {
	RecipientID string  `json:"recipientId"`
	Message     Message `json:"message"`
}
