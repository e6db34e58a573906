package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chaiacademy/academy/internal/core/domain"
	"github.com/chaiacademy/academy/internal/core/ports"
)

const (
	defaultUserCacheTTL = time.Minute
	// notFoundMarker is stored for emails the store does not know.
	notFoundMarker = "-"
)

// Cache is the subset of the Redis client the user cache relies on.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedUserRepository is a read-through cache in front of the user store.
// Hits and misses are cached with the same TTL, so a known and an unknown
// email cost the same number of store round-trips. Cache failures are logged
// and bypassed.
// Key format: user:email:<sha256(email)>
type CachedUserRepository struct {
	next   ports.UserRepository
	client Cache
	ttl    time.Duration
	log    zerolog.Logger
}

func NewCachedUserRepository(next ports.UserRepository, client Cache, ttl time.Duration, log zerolog.Logger) *CachedUserRepository {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	return &CachedUserRepository{next: next, client: client, ttl: ttl, log: log}
}

type cachedUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Department   string    `json:"department,omitempty"`
	Disabled     bool      `json:"disabled,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *CachedUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	key := r.key(email)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(raw) == notFoundMarker {
			return nil, domain.ErrUserNotFound
		}
		if user, decErr := decodeCachedUser(raw); decErr == nil {
			return user, nil
		}
		r.log.Warn().Msg("discarding undecodable cached user")
	case !errors.Is(err, redis.Nil):
		r.log.Warn().Err(err).Msg("user cache read failed, falling back to store")
	}

	user, err := r.next.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		r.store(ctx, key, notFoundMarker)
		return nil, err
	case err != nil:
		return nil, err
	}

	if payload, encErr := json.Marshal(toCachedUser(user)); encErr == nil {
		r.store(ctx, key, payload)
	}
	return user, nil
}

func (r *CachedUserRepository) store(ctx context.Context, key string, value interface{}) {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Msg("user cache write failed")
	}
}

func (r *CachedUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	created, err := r.next.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	if delErr := r.client.Del(ctx, r.key(created.Email)).Err(); delErr != nil {
		r.log.Warn().Err(delErr).Msg("user cache invalidation failed")
	}
	return created, nil
}

func (r *CachedUserRepository) key(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "user:email:" + hex.EncodeToString(sum[:])
}

func toCachedUser(u *domain.User) cachedUser {
	return cachedUser{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Department:   u.Department,
		Disabled:     u.Disabled,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func decodeCachedUser(raw []byte) (*domain.User, error) {
	var cu cachedUser
	if err := json.Unmarshal(raw, &cu); err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(cu.Role)
	if err != nil {
		return nil, fmt.Errorf("cached user %s: %w", cu.ID, err)
	}
	return &domain.User{
		ID:           cu.ID,
		Email:        cu.Email,
		Name:         cu.Name,
		PasswordHash: cu.PasswordHash,
		Role:         role,
		Department:   cu.Department,
		Disabled:     cu.Disabled,
		CreatedAt:    cu.CreatedAt,
		UpdatedAt:    cu.UpdatedAt,
	}, nil
}
