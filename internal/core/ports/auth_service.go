package ports

import (
	"context"
	"time"

	"github.com/chaiacademy/academy/internal/core/domain"
)

// SignupInput carries a self-service registration request.
type SignupInput struct {
	Email      string
	Name       string
	Password   string
	Department string
	Role       domain.Role
}

// LoginResult is what a successful login hands back to the transport layer.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.Identity
}

type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*domain.User, error)
	Resolve(ctx context.Context, email, password string) (domain.Identity, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
}

// SessionIssuer converts identities into signed credentials and back.
type SessionIssuer interface {
	Issue(identity domain.Identity) (string, time.Time, error)
	Decode(token string) (domain.Session, error)
	Refresh(sess domain.Session) (string, time.Time, bool, error)
}
