package handler

import (
	"context"
	"net/http"

	"github.com/tillworks/till/internal/port"
)

func contextWithUser(ctx context.Context, user port.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func userFrom(r *http.Request) port.User {
	user, _ := r.Context().Value(userContextKey).(port.User)
	return user
}
