package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/selfservice/pkg/models"
)

type contextKey string

const (
	remoteUserKey contextKey = "remote_user"
	loaderKey     contextKey = "loader"
	requestLogKey contextKey = "request_log"
)

// requestLog collects fields that inner middleware learn about a request so
// the outer Logger can report them.
type requestLog struct {
	user string
}

func SetRemoteUser(ctx context.Context, user string) context.Context {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.user = user
	}
	return context.WithValue(ctx, remoteUserKey, user)
}

func GetRemoteUser(r *http.Request) (string, bool) {
	user, ok := r.Context().Value(remoteUserKey).(string)
	return user, ok
}

func SetLoader(ctx context.Context, l *models.Loader) context.Context {
	return context.WithValue(ctx, loaderKey, l)
}

func GetLoader(r *http.Request) (*models.Loader, bool) {
	l, ok := r.Context().Value(loaderKey).(*models.Loader)
	return l, ok && l != nil
}
