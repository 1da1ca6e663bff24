package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/telemetry"
	"github.com/Wittle-South-LLC/olsnet/internal/transport/http/handlers"
	"github.com/Wittle-South-LLC/olsnet/internal/transport/http/middleware"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Accounts      *usecase.AccountService
	PasswordReset *usecase.PasswordResetService
	Tokens        *usecase.TokenService
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Metrics  *telemetry.Metrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, err
	}
	r.Use(httpMetrics.Handler())

	csrfProtectReads := deps.Config.JWT.CSRFProtectReads
	requireSession := middleware.RequireSession(deps.Services.Tokens, csrfProtectReads)
	requireRefresh := middleware.RequireRefresh(deps.Services.Tokens, csrfProtectReads)
	requireReset := middleware.RequireResetToken(deps.Services.Tokens, csrfProtectReads)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	loginHandler := handlers.NewLoginHandler(deps.Config, deps.Services.Auth, deps.Services.Accounts, deps.Metrics, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.Config, deps.Services.Accounts, deps.Services.Auth, deps.Logger)
	resetHandler := handlers.NewPasswordResetHandler(deps.Config, deps.Services.PasswordReset, deps.Metrics, deps.Logger)

	r.POST("/login", loginHandler.Login)
	r.GET("/login", requireRefresh, loginHandler.Rehydrate)
	r.POST("/logout", requireSession, loginHandler.Logout)
	r.POST("/fb_login", loginHandler.FacebookLogin)

	r.POST("/pw_reset", resetHandler.Start)
	r.PUT("/pw_reset", requireReset, resetHandler.Finish)

	users := r.Group("/users")
	{
		users.POST("", userHandler.Register)
		users.GET("", requireSession, userHandler.List)
		users.GET("/:user_id", requireSession, userHandler.Get)
		users.PUT("/:user_id", requireSession, userHandler.Update)
		users.DELETE("/:user_id", requireSession, userHandler.Delete)
	}

	return r, nil
}
