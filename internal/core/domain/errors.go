package domain

import "errors"

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrNotAuthenticated = errors.New("not authenticated")
var ErrInvalidPayload = errors.New("not a valid connection code")
var ErrSelfPairing = errors.New("cannot connect to yourself")
var ErrEmptyContent = errors.New("message content is empty")
var ErrConnectionNotFound = errors.New("connection not found")
var ErrUserExists = errors.New("user already exists")

// ErrNetwork marks transient transport failures. Callers match it with
// errors.Is; the wrapped cause carries the detail. Never retried at this
// layer beyond the transport channel's own reconnect policy.
var ErrNetwork = errors.New("network failure")
