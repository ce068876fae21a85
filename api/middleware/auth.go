package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/keenchase/auth-center/api/responses"
	"github.com/keenchase/auth-center/internal/sessions"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
)

type sessionVerifier interface {
	Verify(ctx context.Context, token string) (*sessions.Verification, error)
}

// Auth validates a bearer session token and seeds the request context with
// the caller's identity.
func Auth(verifier sessionVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := bearerToken(r)
			if token == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			verification, err := verifier.Verify(ctx, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithUserID(ctx, verification.UserID.String())
			ctx = WithLoginType(ctx, verification.LoginType)
			ctx = WithToken(ctx, token)
			if logg != nil {
				ctx = logg.WithUserID(ctx, verification.UserID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
