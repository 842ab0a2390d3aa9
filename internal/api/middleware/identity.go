package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/tokbox/tokbox/internal/auth"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/pkg/crypto"
)

type identityKey struct{}

// SessionValidator reads and validates the caller's session token.
type SessionValidator interface {
	TokenFromRequest(r *http.Request) string
	ValidateToken(token string) (auth.Claims, error)
}

// PlanReader looks up the billing plan of a user.
type PlanReader interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
}

// Identity resolves the caller to a domain.Identity and stores it in the
// request context. Requests without a token are anonymous and identified by
// their (hashed) client IP. A token that fails validation is rejected with 401.
func Identity(sessions SessionValidator, profiles PlanReader, hasher *crypto.IPHasher, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := domain.Identity{
				IPAddress: hasher.Hash(clientIP(r)),
				Plan:      domain.PlanAnonymous,
			}

			if token := sessions.TokenFromRequest(r); token != "" {
				claims, err := sessions.ValidateToken(token)
				if err != nil {
					msg := "invalid session"
					if errors.Is(err, auth.ErrExpiredToken) {
						msg = "session expired"
					}
					logger.Debug("session rejected", "error", err)
					writeError(w, http.StatusUnauthorized, msg)
					return
				}

				profile, err := profiles.Get(r.Context(), claims.UserID())
				if err != nil {
					logger.Error("failed to load profile", "user_id", claims.UserID(), "error", err)
					writeError(w, http.StatusInternalServerError, "failed to load account")
					return
				}

				id.UserID = claims.UserID()
				id.Email = claims.Email
				if id.Email == "" {
					id.Email = profile.Email
				}
				id.Plan = profile.Plan
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by the Identity middleware. The
// zero value is an anonymous caller with no IP.
func IdentityFrom(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityKey{}).(domain.Identity)
	return id
}

// clientIP strips the port chi's RealIP leaves in RemoteAddr when no proxy
// header was present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
