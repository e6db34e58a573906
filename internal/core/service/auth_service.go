package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaiacademy/academy/internal/core/domain"
	"github.com/chaiacademy/academy/internal/core/ports"
)

const MinPasswordLength = 8

// PasswordHasher is the credential hashing AuthService depends on. *Hasher
// is the production implementation.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	VerifyDummy(plaintext string)
}

// AuthService implements signup, identity resolution and login.
type AuthService struct {
	repo     ports.UserRepository
	hasher   PasswordHasher
	sessions ports.SessionIssuer
	log      zerolog.Logger
}

func NewAuthService(repo ports.UserRepository, hasher PasswordHasher, sessions ports.SessionIssuer, log zerolog.Logger) *AuthService {
	return &AuthService{repo: repo, hasher: hasher, sessions: sessions, log: log}
}

// Signup registers a self-service account. ADMIN cannot be self-assigned and
// an empty role means STAFF.
func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return nil, fmt.Errorf("%w: email and name are required", domain.ErrInvalidInput)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, MinPasswordLength)
	}

	role := in.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if !role.Valid() || role == domain.RoleAdmin {
		return nil, domain.ErrInvalidRole
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		Department:   strings.TrimSpace(in.Department),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", created.ID).Str("role", string(created.Role)).Msg("account created")
	return created, nil
}

// Resolve checks an email/password pair against the store. Unknown accounts,
// wrong passwords and disabled accounts all yield domain.ErrInvalidCredentials
// after exactly one bcrypt comparison.
func (s *AuthService) Resolve(ctx context.Context, email, password string) (domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		s.hasher.VerifyDummy(password)
		return domain.Identity{}, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		s.hasher.VerifyDummy(password)
		return domain.Identity{}, domain.ErrInvalidCredentials
	case err != nil:
		return domain.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) || user.Disabled {
		return domain.Identity{}, domain.ErrInvalidCredentials
	}
	return user.Identity(), nil
}

// Login resolves the credentials and issues a session for the identity.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	identity, err := s.Resolve(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, exp, err := s.sessions.Issue(identity)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.log.Info().Str("user_id", identity.ID).Str("role", string(identity.Role)).Msg("login succeeded")
	return &ports.LoginResult{Token: token, ExpiresAt: exp, User: identity}, nil
}
