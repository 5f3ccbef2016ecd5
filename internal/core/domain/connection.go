package domain

import "time"

// Connection is a confirmed bidirectional pairing between the current
// identity and a peer. Records are append-only; insertion order is the
// pairing order. At most one Connection exists per distinct peer id.
type Connection struct {
	PeerID      string    `json:"userId"`
	PeerName    string    `json:"userName"`
	PeerEmail   string    `json:"userEmail"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// PairingPayload is the structured content of a scanned code. A scanned
// string must decode into this shape before it is trusted downstream.
type PairingPayload struct {
	UserID string `json:"userId" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}
