package forgotPassword

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "marketplace_auth/internal/lib/api/response"
	sl "marketplace_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// GenericMessage is returned whether or not the address is registered.
const GenericMessage = "If an account with that email exists, a password reset link has been sent"

type Request struct {
	Email string `json:"email" validate:"required,email"`
}

type Response struct {
	resp.Response
}

type PasswordResetter interface {
	ForgotPassword(ctx context.Context, email string) error
}

// New godoc
// @Summary      Запрос на сброс пароля
// @Description  ## Описание
// @Description  Отправляет письмо со ссылкой для сброса пароля.
// @Description
// @Description  ### Безопасность (важно!):
// @Description  - Endpoint всегда возвращает 200 OK с одним и тем же сообщением
// @Description  - Это предотвращает enumeration атаки (определение существующих email)
// @Description  - Токен сброса действует 1 час и может быть использован один раз
// @Description  - Отправка асинхронная через RabbitMQ (не блокирует ответ)
// @Description
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        email  body  object{email=string}  true  "Email пользователя"  example({"email": "user@example.com"})
// @Success      200  {object}  Response
// @Failure      400  {object}  resp.Response  "Ошибка валидации: некорректный email формат"
// @Failure      500  {object}  resp.Response  "Внутренняя ошибка сервера"
// @Router       /auth/forgot-password [post]
func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService PasswordResetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.forgotPassword.New"

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

		if err := authService.ForgotPassword(ctx, req.Email); err != nil {
			log.Error("failed to process password reset request", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{Response: resp.OKMessage(GenericMessage)})
	}
}
