package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/captcha"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/database"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/facebook"
	kafkainfra "github.com/Wittle-South-LLC/olsnet/internal/infra/kafka"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/logger"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/mail"
	redisinfra "github.com/Wittle-South-LLC/olsnet/internal/infra/redis"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/telemetry"
	postgresrepo "github.com/Wittle-South-LLC/olsnet/internal/repository/postgres"
	redisrepo "github.com/Wittle-South-LLC/olsnet/internal/repository/redis"
	"github.com/Wittle-South-LLC/olsnet/internal/transport/http/routes"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

// Application owns the wired service graph and its lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

// New wires the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewFileKeyProvider(cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	users := postgresrepo.NewUserRepository(pool)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimits := redisrepo.NewRateLimitStore(redisClient.Client(), "olsnet:rate-limit", rateLimitWindow*2)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubEventPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubEventPublisher(log)
	}

	var captchaVerifier port.CaptchaVerifier
	if cfg.Recaptcha.Secret != "" {
		captchaVerifier = captcha.NewRecaptchaVerifier(cfg.Recaptcha, log)
	} else {
		log.Warn("recaptcha secret not configured, accepting all challenges")
		captchaVerifier = captcha.AlwaysPassVerifier{}
	}

	mailer := mail.NewSMTPMailer(cfg.SMTP, log)
	identity := facebook.NewClient(cfg.Facebook)
	passwordValidator := security.DefaultPasswordValidator()
	metrics := telemetry.NewMetrics()

	tokenService := usecase.NewTokenService(keyProvider, keyProvider.SigningKID(), cfg.JWT)
	authService := usecase.NewAuthService(cfg, users, tokenService, rateLimits, log)
	accountService := usecase.NewAccountService(cfg, users, tokenService, captchaVerifier, identity, eventPublisher, passwordValidator, log)
	resetService := usecase.NewPasswordResetService(cfg, users, tokenService, rateLimits, mailer, eventPublisher, passwordValidator, log)

	engine, err := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Accounts:      accountService,
			PasswordReset: resetService,
			Tokens:        tokenService,
		},
	})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("register routes: %w", err)
	}

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down with a
// bounded grace period.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting accounts API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
