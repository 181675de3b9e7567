package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tillworks/till/internal/port"
)

const sessionKeyPrefix = "session:"

// RedisAuth resolves session tokens to user identities. Sessions are
// written by the sign-in flow and read on every stamped write.
type RedisAuth struct {
	client     *redis.Client
	sessionTTL time.Duration
}

func NewRedisAuth(client *redis.Client, sessionTTL time.Duration) *RedisAuth {
	return &RedisAuth{client: client, sessionTTL: sessionTTL}
}

func (a *RedisAuth) CurrentUser(ctx context.Context, token string) (port.User, bool, error) {
	raw, err := a.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return port.User{}, false, nil
	}
	if err != nil {
		return port.User{}, false, errors.Wrap(err, "session get")
	}

	var user port.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return port.User{}, false, errors.Wrap(err, "decode session")
	}
	if !user.ExpiresAt.IsZero() && time.Now().After(user.ExpiresAt) {
		return port.User{}, false, nil
	}
	return user, true, nil
}

func (a *RedisAuth) SignOut(ctx context.Context, token string) error {
	return a.client.Del(ctx, sessionKeyPrefix+token).Err()
}

// CreateSession registers a session for user and returns its token.
func (a *RedisAuth) CreateSession(ctx context.Context, user port.User) (string, error) {
	token := uuid.NewString()
	user.ExpiresAt = time.Now().Add(a.sessionTTL)

	raw, err := json.Marshal(user)
	if err != nil {
		return "", errors.Wrap(err, "encode session")
	}
	if err := a.client.Set(ctx, sessionKeyPrefix+token, raw, a.sessionTTL).Err(); err != nil {
		return "", errors.Wrap(err, "session set")
	}
	return token, nil
}
