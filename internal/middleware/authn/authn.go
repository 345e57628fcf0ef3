package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	resp "marketplace_auth/internal/lib/api/response"
	"marketplace_auth/internal/lib/jwt"
	sl "marketplace_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ctxKey struct{}

// Principal is the caller proven by a valid access token.
type Principal struct {
	UserID int64
	Role   string
}

type TokenValidator interface {
	Validate(token, expectedPurpose string) (*jwt.Claims, error)
}

// New rejects requests without a valid Bearer access token and stores the
// caller in the request context.
func New(log *slog.Logger, validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearerToken(r)
			if !ok {
				log.Info("missing bearer token")
				unauthorized(w, r)
				return
			}

			claims, err := validator.Validate(token, jwt.PurposeAccess)
			if err != nil {
				log.Info("invalid access token", sl.Err(err))
				unauthorized(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{UserID: claims.UserID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")

	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="marketplace"`)
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error("Unauthorized"))
}
