package resetPassword

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
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type Response struct {
	resp.Response
}

type PasswordResetter interface {
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService PasswordResetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetPassword.New"

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

		err = authService.ResetPassword(ctx, req.Token, req.NewPassword, req.ConfirmPassword)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid or expired token"))
			case errors.Is(err, auth.ErrUserInactive):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("User is inactive"))
			case errors.Is(err, auth.ErrSamePassword):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("New password must differ from the current one"))
			case errors.Is(err, auth.ErrValidation):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Passwords do not match"))
			default:
				log.Error("failed to reset password", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Password reset successfully")

		render.JSON(w, r, Response{Response: resp.OKMessage("Password has been reset")})
	}
}
