package ports

import (
	"context"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
)

// API is the REST collaborator consumed by the sync engine. Implementations
// attach the current bearer credential to every authenticated call and map
// HTTP statuses onto domain errors (401 → ErrInvalidCredentials, transport
// failures → ErrNetwork).
type API interface {
	// SetToken replaces the bearer credential attached to authenticated
	// calls. An empty token detaches it.
	SetToken(token string)
	Login(ctx context.Context, email, password string) (token string, identity *domain.Identity, err error)
	Register(ctx context.Context, name, email, password string) (*domain.Identity, error)
	CurrentUser(ctx context.Context) (*domain.Identity, error)
	ListConnections(ctx context.Context, userID string) ([]domain.Connection, error)
	CreateConnection(ctx context.Context, user1ID, user2ID string) error
	CreateMessage(ctx context.Context, connectionID, senderID, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, connectionID string) ([]domain.Message, error)
}
