package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore is the fast revocation list consulted on every request.
// Revoking a session invalidates both tokens of the pair at once.
type SessionStore interface {
	// Revoke marks a session revoked for at least ttl (the remaining
	// refresh-token lifetime).
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	// IsRevoked checks whether a session has been revoked.
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	// RevokeUser invalidates every session of a user issued before now
	// (force logout, password change).
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	// IsUserRevoked checks whether sessions issued at issuedAt for the
	// user have been invalidated.
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// RedisSessionStore implements SessionStore on Redis.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSessionStore creates a session store sharing an existing
// Redis client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, keyPrefix: "session:revoked:"}
}

func (s *RedisSessionStore) sessionKey(sessionID string) string {
	return s.keyPrefix + "sid:" + sessionID
}

func (s *RedisSessionStore) userKey(userID string) string {
	return s.keyPrefix + "user:" + userID
}

// Revoke marks a session revoked.
func (s *RedisSessionStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.sessionKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked checks whether a session has been revoked.
func (s *RedisSessionStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return exists > 0, nil
}

// RevokeUser stores the invalidation timestamp; sessions issued before
// it are rejected.
func (s *RedisSessionStore) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	now := time.Now().Unix()
	if err := s.client.Set(ctx, s.userKey(userID), now, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// IsUserRevoked checks the user-level invalidation timestamp.
func (s *RedisSessionStore) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	val, err := s.client.Get(ctx, s.userKey(userID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to check user revocation: %w", err)
	}
	return issuedAt.Unix() <= val, nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
