package login

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
	Login      string `json:"login" validate:"required,max=255"`
	Pass       string `json:"password" validate:"required,max=72"`
	RememberMe bool   `json:"remember_me"`
}

type Response struct {
	resp.Response
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type Loginer interface {
	Login(ctx context.Context, login, pass string, rememberMe bool) (auth.TokenPair, error)
}

// New godoc
// @Summary      Вход пользователя
// @Description  Принимает username или email и пароль, возвращает access и refresh токены.
// @Description  Для несуществующего пользователя и неверного пароля возвращается одна и та же ошибка.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body  Request  true  "Учетные данные"
// @Success      200  {object}  Response
// @Failure      400  {object}  resp.Response  "Ошибка валидации"
// @Failure      401  {object}  resp.Response  "Неверные учетные данные"
// @Failure      403  {object}  resp.Response  "Аккаунт деактивирован"
// @Failure      500  {object}  resp.Response  "Внутренняя ошибка сервера"
// @Router       /auth/login [post]
func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService Loginer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		pair, err := authService.Login(ctx, req.Login, req.Pass, req.RememberMe)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid credentials"))
			case errors.Is(err, auth.ErrAccountDeactivated):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Account is deactivated"))
			default:
				log.Error("failed to login user", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("User logged in successfully")

		ResponseOK(w, r, pair)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, pair auth.TokenPair) {
	render.JSON(w, r, Response{
		Response:         resp.OKMessage("Login successful"),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresAt:        pair.ExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}
