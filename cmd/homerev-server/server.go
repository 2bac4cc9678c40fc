package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/config"
	"github.com/homerev/api/internal/domain/medical"
	"github.com/homerev/api/internal/domain/users"
	"github.com/homerev/api/internal/graph"
	"github.com/homerev/api/internal/platform/auditstream"
	"github.com/homerev/api/internal/platform/auth"
	"github.com/homerev/api/internal/platform/authz"
	"github.com/homerev/api/internal/platform/db"
	"github.com/homerev/api/internal/platform/docstore"
	"github.com/homerev/api/internal/platform/health"
	"github.com/homerev/api/internal/platform/idp"
	"github.com/homerev/api/internal/platform/middleware"
	"github.com/homerev/api/internal/platform/telemetry"
)

// routes holds everything newEcho mounts.
type routes struct {
	cfg      *config.Config
	logger   zerolog.Logger
	exec     *graph.Executor
	hooks    *idp.HookHandler
	metrics  *telemetry.Provider
	health   *health.Checker
	verifier *auth.Verifier
	audit    []middleware.AuditRecorder
}

func newEcho(r routes) *echo.Echo {
	cfg := r.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(r.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(r.logger))
	e.Use(r.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.Audit(r.logger, r.audit...))

	authn := authMiddleware(cfg, r.verifier)

	gql := e.Group("/graphql", authn...)
	gql.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	graph.NewHandler(r.exec, r.logger).RegisterRoutes(gql)

	// The identity provider calls these with a shared secret, not a token.
	r.hooks.RegisterRoutes(e.Group("/hooks"))

	admin := e.Group("/admin", authn...)
	admin.Use(auth.RequireRole(auth.RoleAdmin))
	admin.GET("/requirements", func(c echo.Context) error {
		return c.JSON(http.StatusOK, r.exec.Table().Entries())
	})

	e.GET("/health", r.health.Handler())
	e.GET(telemetry.MetricsPath, r.metrics.Handler())
	return e
}

// authMiddleware resolves the principal. Development mode accepts the
// X-Dev-Identity headers and, with a signing key, HS256 tokens as well.
func authMiddleware(cfg *config.Config, v *auth.Verifier) []echo.MiddlewareFunc {
	var mws []echo.MiddlewareFunc
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		mws = append(mws, auth.DevAuthMiddleware())
	}
	if v != nil {
		mws = append(mws, auth.JWTMiddleware(v, graph.AuthFailure))
	}
	return mws
}

func newVerifier(cfg *config.Config) (*auth.Verifier, error) {
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment && cfg.AuthSigningKey == "" {
		return nil, nil
	}
	return auth.NewVerifier(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is active: requests may name their principal with X-Dev-Identity and X-Dev-Role")
	}

	ctx := context.Background()
	metrics := telemetry.NewProvider()

	// Users store
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.UsersDatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to users database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to users database")

	// Medical store
	store, err := docstore.Open(ctx, docstore.Config{URI: cfg.MedicalMongoURI, Database: cfg.MedicalMongoDB})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to medical store")
	}
	defer store.Close(context.Background())
	if err := medical.EnsureIndexes(ctx, store.Database()); err != nil {
		logger.Fatal().Err(err).Msg("failed to create medical store indexes")
	}
	logger.Info().Str("database", cfg.MedicalMongoDB).Msg("connected to medical store")

	checks := health.NewChecker().
		Add("users_db", pool.Ping).
		Add("medical_store", store.Ping).
		Detail("users_pool", func() interface{} {
			stats := db.Stats(pool)
			metrics.SetPoolStats(stats)
			return stats
		})

	// Audit stream
	var recorders []middleware.AuditRecorder
	if cfg.RedisURL != "" {
		rdb, err := auditstream.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to audit stream")
		}
		defer rdb.Close()
		recorders = append(recorders, metrics.CountAuditFailures(auditstream.NewRecorder(rdb, cfg.AuditStream)))
		checks.Add("audit_stream", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info().Str("stream", cfg.AuditStream).Msg("publishing audit entries")
	}

	accounts, err := newAccountManager(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create identity provider client")
	}

	medSvc := medical.NewService(medical.NewRepoMongo(store.Database()))
	usersSvc := users.NewService(users.NewRepoPG(pool), accounts, medSvc)
	usersSvc.SetLogger(logger)

	projectTypes, err := medSvc.ProjectTypes(ctx, cfg.ProjectTypes)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load project types, using configured defaults")
		projectTypes = cfg.ProjectTypes
	}

	exec, err := graph.NewExecutor(graph.Config{
		Users:         usersSvc,
		Medical:       medSvc,
		Oracle:        usersSvc,
		ProjectTypes:  projectTypes,
		Introspection: cfg.GraphQLIntrospection,
		Logger:        logger,
		Observers:     []authz.Observer{metrics},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build GraphQL schema")
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure token verification")
	}

	policy := idp.NewSignUpPolicy(accounts, cfg.StudentEmailSuffix, logger)
	if cfg.HookSecret == "" {
		logger.Warn().Msg("HOOK_SECRET not set, account lifecycle hooks are disabled")
	}

	e := newEcho(routes{
		cfg:      cfg,
		logger:   logger,
		exec:     exec,
		hooks:    idp.NewHookHandler(policy, cfg.HookSecret, logger),
		metrics:  metrics,
		health:   checks,
		verifier: verifier,
		audit:    recorders,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Strs("project_types", projectTypes).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
