package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/keenchase/auth-center/api/routes"
	"github.com/keenchase/auth-center/internal/admin"
	"github.com/keenchase/auth-center/internal/auth"
	"github.com/keenchase/auth-center/internal/identity"
	"github.com/keenchase/auth-center/internal/loginlog"
	"github.com/keenchase/auth-center/internal/sessions"
	"github.com/keenchase/auth-center/internal/users"
	"github.com/keenchase/auth-center/internal/wechat"
	"github.com/keenchase/auth-center/pkg/callback"
	"github.com/keenchase/auth-center/pkg/config"
	"github.com/keenchase/auth-center/pkg/db"
	"github.com/keenchase/auth-center/pkg/logger"
	"github.com/keenchase/auth-center/pkg/metrics"
	"github.com/keenchase/auth-center/pkg/migrate"
	"github.com/keenchase/auth-center/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "auth-center"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "auth-center",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.JWT.UsingDevSecret {
		logg.Warn(context.Background(), "AUTHCENTER_SECRET not set, using the built-in development signing key; tokens are forgeable")
	}
	if cfg.Admin.Identifier == "" {
		logg.Warn(context.Background(), "ADMIN_WECHAT_OPENID not set, admin endpoints are open for bootstrap")
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	authMetrics := metrics.NewAuthMetrics(registry)

	userRepo := users.NewRepository(dbClient.DB())
	accountRepo := identity.NewAccountRepository(dbClient.DB())
	sessionRepo := sessions.NewRepository(dbClient.DB())
	loginTrail := loginlog.NewRepository(dbClient.DB())

	verifier := wechat.NewVerifier(cfg.WeChat, logg)
	callbackValidator := callback.NewValidator(cfg.Callback)

	resolver, err := identity.NewResolver(identity.ResolverParams{
		UserRepo:    userRepo,
		AccountRepo: accountRepo,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create identity resolver", err)
		os.Exit(1)
	}

	issuer, err := sessions.NewIssuer(sessions.IssuerParams{
		SessionRepo: sessionRepo,
		JWTConfig:   cfg.JWT,
		Metrics:     authMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session issuer", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Verifier:          verifier,
		Resolver:          resolver,
		Issuer:            issuer,
		UserRepo:          userRepo,
		LoginRecorder:     loginTrail,
		CallbackValidator: callbackValidator,
		Metrics:           authMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	adminService, err := admin.NewService(admin.ServiceParams{
		UserRepo:       userRepo,
		SessionCounter: sessionRepo,
		LoginTrail:     loginTrail,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create admin service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting auth-center server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:            cfg,
			Logger:            logg,
			DB:                dbClient,
			Redis:             redisClient,
			Verifier:          verifier,
			CallbackValidator: callbackValidator,
			SessionIssuer:     issuer,
			AuthService:       authService,
			AdminService:      adminService,
			AdminGate:         admin.NewGate(cfg.Admin, logg),
			UserRepo:          userRepo,
			Registry:          registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "auth-center server stopped unexpectedly", err)
		os.Exit(1)
	}
}
