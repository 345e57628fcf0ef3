package rateLimit

import (
	"net/http"
	"time"

	resp "marketplace_auth/internal/lib/api/response"

	httprate "github.com/go-chi/httprate"
	"github.com/go-chi/render"
)

// rule is a per-client budget for one auth route.
type rule struct {
	route  string
	limit  int
	window time.Duration
}

var (
	loginRule          = rule{route: "login", limit: 10, window: 5 * time.Minute}
	registerRule       = rule{route: "register", limit: 5, window: time.Hour}
	refreshRule        = rule{route: "refresh", limit: 30, window: 10 * time.Minute}
	logoutRule         = rule{route: "logout", limit: 20, window: 10 * time.Minute}
	forgotPasswordRule = rule{route: "forgot-password", limit: 3, window: time.Hour}
	resetPasswordRule  = rule{route: "reset-password", limit: 10, window: 10 * time.Minute}
	changePasswordRule = rule{route: "change-password", limit: 5, window: 10 * time.Minute}
)

func Login() func(http.Handler) http.Handler { return loginRule.middleware() }

func Register() func(http.Handler) http.Handler { return registerRule.middleware() }

func Refresh() func(http.Handler) http.Handler { return refreshRule.middleware() }

func Logout() func(http.Handler) http.Handler { return logoutRule.middleware() }

// ForgotPassword is strict since every hit may send an email.
func ForgotPassword() func(http.Handler) http.Handler { return forgotPasswordRule.middleware() }

func ResetPassword() func(http.Handler) http.Handler { return resetPasswordRule.middleware() }

func ChangePassword() func(http.Handler) http.Handler { return changePasswordRule.middleware() }

// middleware keys the counter by route and client IP and answers over-limit
// requests with the usual JSON envelope.
func (ru rule) middleware() func(http.Handler) http.Handler {
	return httprate.Limit(
		ru.limit,
		ru.window,
		httprate.WithKeyFuncs(httprate.Key(ru.route), httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, resp.Error("Too many requests, try again later"))
		}),
	)
}
