package revokeTokens

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"marketplace_auth/internal/auth"
	resp "marketplace_auth/internal/lib/api/response"
	sl "marketplace_auth/internal/lib/logger"
	"marketplace_auth/internal/middleware/authn"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Revoked int64 `json:"revoked"`
}

type TokenRevoker interface {
	RevokeTokens(ctx context.Context, actorID int64, actorRole string, targetID int64) (int64, error)
}

// New signs user {id} out of every device. Route parameter "id" is required.
func New(
	log *slog.Logger,
	authService TokenRevoker,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.revokeTokens.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		principal, ok := authn.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || targetID <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("invalid user id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		n, err := authService.RevokeTokens(ctx, principal.UserID, principal.Role, targetID)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Forbidden"))
			case errors.Is(err, auth.ErrUserNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			case errors.Is(err, auth.ErrUserInactive):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User is inactive"))
			default:
				log.Error("failed to revoke tokens", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("tokens revoked", slog.Int64("target_uid", targetID), slog.Int64("count", n))

		render.JSON(w, r, Response{
			Response: resp.OKMessage("All sessions revoked"),
			Revoked:  n,
		})
	}
}
