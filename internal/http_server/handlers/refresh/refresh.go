package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace_auth/internal/auth"
	resp "marketplace_auth/internal/lib/api/response"
	sl "marketplace_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Response struct {
	resp.Response
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService Refresher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Info("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, err := authService.Refresh(ctx, req.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrValidation):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Refresh token is required"))
			case errors.Is(err, auth.ErrInvalidToken):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid refresh token"))
			case errors.Is(err, auth.ErrTokenExpired):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token expired"))
			case errors.Is(err, auth.ErrTokenRevoked):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token revoked"))
			case errors.Is(err, auth.ErrUserInactive):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("User is inactive"))
			default:
				log.Error("failed to refresh tokens", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Tokens refreshed successfully")

		render.JSON(w, r, Response{
			Response:         resp.OKMessage("Tokens refreshed"),
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			ExpiresAt:        pair.ExpiresAt,
			RefreshExpiresAt: pair.RefreshExpiresAt,
		})
	}
}
