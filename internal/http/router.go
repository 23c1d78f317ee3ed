package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/campuskiosk/kioskhub/internal/auth"
	"github.com/campuskiosk/kioskhub/internal/cache"
	"github.com/campuskiosk/kioskhub/internal/config"
	"github.com/campuskiosk/kioskhub/internal/http/handlers"
	"github.com/campuskiosk/kioskhub/internal/http/middlewares"
	"github.com/campuskiosk/kioskhub/internal/observability"
	"github.com/campuskiosk/kioskhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(nil))
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(prom.GinHandleMiddleware())
	r.Use(otelgin.Middleware("kioskhub-api"))

	pingDB := func() error {
		if pool == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
	pingRedis := func() error {
		if rdb == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}

	health := handlers.NewHealthHandler(pingDB, pingRedis)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	if cfg.AssetsDir != "" {
		r.Static("/ui-assets", cfg.AssetsDir)
		assets := handlers.NewAssetsHandler(cfg.AssetsDir, cfg.PublicBaseURL)
		r.GET("/ui-assets.json", assets.Manifest)
	}

	// repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	resetCodesRepo := postgres.NewResetCodesRepo(pool)
	cardsRepo := postgres.NewCardsRepo(pool)
	refreshRepo := postgres.NewRefreshTokensRepo(pool)
	roomsRepo := postgres.NewRoomsRepo(pool, prom)
	reservationsRepo := postgres.NewReservationsRepo(pool, prom)
	suppliesRepo := postgres.NewSuppliesRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	gate := auth.NewGate(usersRepo, resetCodesRepo, cardsRepo)
	sharedCache := cache.New(rdb, cfg.CacheTTL)

	authHandler := handlers.NewAuthHandler(gate, usersRepo, cardsRepo, jobsRepo, jwtManager, refreshRepo, cfg)
	roomsHandler := handlers.NewRoomsHandler(roomsRepo, sharedCache)
	reservationsHandler := handlers.NewReservationsHandler(reservationsRepo, roomsRepo, usersRepo, jobsRepo, prom, cfg.PublicBaseURL)
	suppliesHandler := handlers.NewSuppliesHandler(suppliesRepo, usersRepo, jobsRepo, sharedCache)
	adminJobsHandler := handlers.NewAdminJobsHandler(jobsRepo)

	authn := middlewares.NewAuthMiddleware(jwtManager)

	// Kiosks share one IP, so login attempts are limited per email+IP in
	// Redis and counted across API replicas. The limiter fails open when
	// Redis is down.
	loginLimiter := middlewares.NewRedisRateLimiter(rdb, "rl:login", 10, time.Minute)
	resetLimiter := middlewares.NewRedisRateLimiter(rdb, "rl:reset", 5, 5*time.Minute)
	writeLimiter := middlewares.NewRateLimiter(60, time.Minute)

	requireJSON := middlewares.RequireJSON()

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", requireJSON, loginLimiter.Middleware(middlewares.KeyByIP), authHandler.Register)
		authGroup.POST("/login", requireJSON, loginLimiter.Middleware(middlewares.KeyByIP), authHandler.Login)
		authGroup.POST("/card-login", requireJSON, loginLimiter.Middleware(middlewares.KeyByIP), authHandler.CardLogin)
		authGroup.POST("/request-reset", requireJSON, resetLimiter.Middleware(middlewares.KeyByIP), authHandler.RequestReset)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)

		authGroup.POST("/set-password", requireJSON, authn.RequireAuth(), authHandler.SetPassword)
		authGroup.POST("/link-card", requireJSON, authn.RequireAuth(), authHandler.LinkCard)
	}

	r.GET("/rooms", roomsHandler.List)
	r.GET("/rooms/:id", roomsHandler.GetByID)

	reservations := r.Group("/reservations", authn.RequireAuth())
	{
		reservations.POST("", requireJSON, writeLimiter.Middleware(middlewares.KeyByUserOrIP), reservationsHandler.Create)
		reservations.GET("/mine", reservationsHandler.ListMine)
		reservations.GET("", reservationsHandler.ListByDate)
		reservations.GET("/:id", reservationsHandler.GetByID)
		reservations.GET("/:id/calendar", reservationsHandler.Calendar)
		reservations.POST("/:id/cancel", writeLimiter.Middleware(middlewares.KeyByUserOrIP), reservationsHandler.Cancel)
	}

	supplies := r.Group("/supplies", authn.RequireAuth())
	{
		supplies.GET("/catalog", suppliesHandler.Catalog)
		supplies.GET("/items", suppliesHandler.ListItems)
		supplies.GET("/popular", suppliesHandler.Popular)
		supplies.POST("/requests", requireJSON, writeLimiter.Middleware(middlewares.KeyByUserOrIP), suppliesHandler.CreateRequest)
	}

	admin := r.Group("/admin", authn.RequireAuth(), authn.RequireStaff())
	{
		admin.POST("/rooms", requireJSON, roomsHandler.Create)
		admin.PUT("/rooms/:id", requireJSON, roomsHandler.Update)
		admin.DELETE("/rooms/:id", roomsHandler.Delete)

		admin.POST("/reservations/bulk-cancel", requireJSON, reservationsHandler.BulkCancel)

		admin.GET("/jobs", adminJobsHandler.List)
		admin.GET("/jobs/:id", adminJobsHandler.GetByID)
		admin.POST("/jobs/:id/retry", adminJobsHandler.Retry)
		admin.POST("/jobs/reprocess-dead", adminJobsHandler.ReprocessDead)
	}

	return r
}
