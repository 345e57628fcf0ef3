package logout

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
}

type LogoutProvider interface {
	Logout(ctx context.Context, refreshToken string) (alreadyLoggedOut bool, err error)
}

// New godoc
// @Summary      Выход из системы
// @Description  ## Описание
// @Description  Завершает сессию пользователя, отзывая refresh токен.
// @Description
// @Description  ### Особенности:
// @Description  - После logout refresh токен больше нельзя использовать для получения новых access токенов
// @Description  - Повторный logout тем же токеном возвращает 200 OK с сообщением "Already logged out"
// @Description  - Access токен остается валидным до истечения своего срока
// @Description
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body  Request  true  "Refresh токен"
// @Success      200  {object}  Response
// @Failure      400  {object}  resp.Response  "Ошибка валидации"
// @Failure      401  {object}  resp.Response  "Неизвестный refresh токен"
// @Failure      500  {object}  resp.Response  "Внутренняя ошибка сервера"
// @Router       /auth/logout [post]
func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService LogoutProvider,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

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

		already, err := authService.Logout(ctx, req.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrValidation):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Refresh token is required"))
			case errors.Is(err, auth.ErrInvalidToken):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid refresh token"))
			default:
				log.Error("failed to logout", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		msg := "Logged out successfully"
		if already {
			msg = "Already logged out"
		}

		log.Info(msg)

		render.JSON(w, r, Response{Response: resp.OKMessage(msg)})
	}
}
