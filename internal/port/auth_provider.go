package port

import (
	"context"
	"time"
)

// User is the session identity stamped into created_by on transactions.
type User struct {
	ID        string
	Email     string
	ExpiresAt time.Time
}

type AuthProvider interface {
	// CurrentUser resolves a session token to its user, or false when
	// the token is unknown or expired.
	CurrentUser(ctx context.Context, token string) (User, bool, error)

	SignOut(ctx context.Context, token string) error
}
