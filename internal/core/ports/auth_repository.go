package ports

import (
	"context"

	"github.com/chaiacademy/academy/internal/core/domain"
)

// UserRepository is the read/write surface of the external user store.
// FindByEmail receives an already normalized address and returns
// domain.ErrUserNotFound when no record matches.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
}
