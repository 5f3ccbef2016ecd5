package domain

import "time"

// MessageStatus tracks a locally sent message through its confirmation
// lifecycle. Inbound messages arrive already confirmed.
type MessageStatus string

const (
	// MessagePending is a local optimistic append awaiting the server's
	// response to the create call.
	MessagePending MessageStatus = "pending"
	// MessageConfirmed is a message the server has persisted and assigned
	// its canonical id to.
	MessageConfirmed MessageStatus = "confirmed"
)

// Message is a single chat message within a connection. Within one
// connection id, views are presented in non-decreasing timestamp order and
// duplicate ids collapse to one entry.
type Message struct {
	ID           string        `json:"id"`
	ConnectionID string        `json:"connectionId"`
	SenderID     string        `json:"senderId"`
	Content      string        `json:"content"`
	Timestamp    time.Time     `json:"timestamp"`
	Status       MessageStatus `json:"-"`
}
