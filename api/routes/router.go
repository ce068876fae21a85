package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keenchase/auth-center/api/controllers"
	"github.com/keenchase/auth-center/api/middleware"
	"github.com/keenchase/auth-center/internal/admin"
	"github.com/keenchase/auth-center/internal/auth"
	"github.com/keenchase/auth-center/internal/sessions"
	"github.com/keenchase/auth-center/internal/users"
	"github.com/keenchase/auth-center/internal/wechat"
	"github.com/keenchase/auth-center/pkg/callback"
	"github.com/keenchase/auth-center/pkg/config"
	"github.com/keenchase/auth-center/pkg/db"
	"github.com/keenchase/auth-center/pkg/logger"
	"github.com/keenchase/auth-center/pkg/redis"
)

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config            *config.Config
	Logger            *logger.Logger
	DB                db.Pinger
	Redis             *redis.Client
	Verifier          *wechat.Verifier
	CallbackValidator *callback.Validator
	SessionIssuer     *sessions.Issuer
	AuthService       auth.Service
	AdminService      admin.Service
	AdminGate         *admin.Gate
	UserRepo          *users.Repository
	Registry          *prometheus.Registry
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginPhoneLimit,
	)
	var loginStore middleware.RateLimiterStore
	if params.Redis != nil {
		loginStore = params.Redis
	}

	readiness := map[string]controllers.Pinger{"database": params.DB}
	if params.Redis != nil {
		readiness["redis"] = params.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Get("/wechat/authorize", controllers.WeChatAuthorize(params.Verifier, params.CallbackValidator, cfg.App.BaseURL, logg))
		r.Get("/wechat/callback", controllers.WeChatCallback(params.AuthService, logg))
		r.Get("/wechat/mp-callback", controllers.WeChatMPCallback(params.CallbackValidator, logg))
		r.Post("/wechat/login", controllers.WeChatLogin(params.AuthService, logg))

		r.With(middleware.AuthRateLimit(loginPolicy, loginStore, logg)).
			Post("/password/login", controllers.PasswordLogin(params.AuthService, logg))

		r.Post("/verify-token", controllers.VerifyToken(params.AuthService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(params.SessionIssuer, logg))
			r.Get("/user-info", controllers.UserInfo(params.AuthService, logg))
			r.Post("/logout", controllers.Logout(params.AuthService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(params.SessionIssuer, logg))
		r.Use(controllers.RequireAdmin(params.AdminGate, params.UserRepo, logg))

		r.Get("/verify", controllers.AdminVerify())
		r.Get("/users", controllers.AdminListUsers(params.AdminService, logg))
		r.Get("/users/{userID}/login-sources", controllers.AdminUserLoginSources(params.AdminService, logg))
		r.Get("/statistics", controllers.AdminStatistics(params.AdminService, logg))
		r.Post("/set-phone-password", controllers.AdminSetPhonePassword(params.AdminService, logg))
	})

	return r
}
