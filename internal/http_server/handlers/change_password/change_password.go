package changePassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace_auth/internal/auth"
	resp "marketplace_auth/internal/lib/api/response"
	sl "marketplace_auth/internal/lib/logger"
	"marketplace_auth/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type Response struct {
	resp.Response
}

type PasswordChanger interface {
	ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword, confirmPassword string) error
}

// New expects authn middleware in front of it. Access tokens already issued
// stay valid until they expire; refresh tokens are revoked.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService PasswordChanger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.changePassword.New"

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

		err = authService.ChangePassword(ctx, principal.UserID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Current password is incorrect"))
			case errors.Is(err, auth.ErrSamePassword):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("New password must differ from the current one"))
			case errors.Is(err, auth.ErrValidation):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Passwords do not match"))
			case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrUserInactive):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("User is inactive"))
			default:
				log.Error("failed to change password", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Password changed", slog.Int64("uid", principal.UserID))

		render.JSON(w, r, Response{Response: resp.OKMessage("Password changed successfully")})
	}
}
