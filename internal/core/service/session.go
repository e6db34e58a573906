package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chaiacademy/academy/internal/core/domain"
)

const (
	DefaultSessionTTL       = 30 * 24 * time.Hour
	DefaultSessionUpdateAge = 24 * time.Hour
	MinSessionSecretLength  = 32

	tokenIssuer = "academy"
)

// SessionConfig configures a SessionIssuer.
type SessionConfig struct {
	Secret []byte
	// TTL is the lifetime of a freshly issued credential.
	TTL time.Duration
	// UpdateAge is how old a credential must be before Refresh re-issues it.
	UpdateAge time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type sessionClaims struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionIssuer issues and decodes HS256-signed session credentials.
type SessionIssuer struct {
	secret    []byte
	ttl       time.Duration
	updateAge time.Duration
	now       func() time.Time
	parser    *jwt.Parser
}

func NewSessionIssuer(cfg SessionConfig) (*SessionIssuer, error) {
	if len(cfg.Secret) < MinSessionSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSessionSecretLength)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.UpdateAge <= 0 {
		cfg.UpdateAge = DefaultSessionUpdateAge
	}
	if cfg.UpdateAge > cfg.TTL {
		cfg.UpdateAge = cfg.TTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &SessionIssuer{
		secret:    cfg.Secret,
		ttl:       cfg.TTL,
		updateAge: cfg.UpdateAge,
		now:       cfg.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// TTL returns the lifetime of issued credentials.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue signs a credential for identity. The role is snapshotted into the
// token and is not re-read until the credential is replaced.
func (s *SessionIssuer) Issue(identity domain.Identity) (string, time.Time, error) {
	if identity.ID == "" {
		return "", time.Time{}, errors.New("issue session: identity has no id")
	}
	if !identity.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("issue session: %w", domain.ErrInvalidRole)
	}

	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)
	claims := sessionClaims{
		Email: identity.Email,
		Name:  identity.Name,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies token and returns the session it carries. Every failure,
// whatever its cause, is reported as domain.ErrInvalidSession.
func (s *SessionIssuer) Decode(token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, domain.ErrInvalidSession
	}

	var claims sessionClaims
	tkn, err := s.parser.ParseWithClaims(token, &claims, s.keyFunc)
	if err != nil || !tkn.Valid {
		return domain.Session{}, domain.ErrInvalidSession
	}
	if claims.Subject == "" || !claims.Role.Valid() || claims.IssuedAt == nil {
		return domain.Session{}, domain.ErrInvalidSession
	}

	return domain.Session{
		Identity: domain.Identity{
			ID:    claims.Subject,
			Email: claims.Email,
			Name:  claims.Name,
			Role:  claims.Role,
		},
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh re-issues the credential for sess once it is older than the update
// age, sliding the expiry forward. ok is false when no refresh was due.
func (s *SessionIssuer) Refresh(sess domain.Session) (token string, exp time.Time, ok bool, err error) {
	if s.now().Sub(sess.IssuedAt) < s.updateAge {
		return "", time.Time{}, false, nil
	}
	token, exp, err = s.Issue(sess.Identity)
	if err != nil {
		return "", time.Time{}, false, err
	}
	return token, exp, true, nil
}

func (s *SessionIssuer) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return s.secret, nil
}
