package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/thereayou/ligabpi/internal/config"
	"github.com/thereayou/ligabpi/internal/database"
	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/handlers"
	"github.com/thereayou/ligabpi/internal/metrics"
	"github.com/thereayou/ligabpi/internal/middleware"
	"github.com/thereayou/ligabpi/internal/realtime"
	"github.com/thereayou/ligabpi/pkg/auth"
)

// Options собранные зависимости сервера; NewServer заполняет их из конфига,
// тесты собирают руками.
type Options struct {
	DB         *database.Database
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Blacklist  middleware.TokenBlacklist
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	IsAdmin    func(email string) bool

	// AllowedOrigins для WebSocket; пусто значит любой Origin.
	AllowedOrigins []string
}

type Server struct {
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	Hub        *realtime.Hub
	JWTManager *auth.JWTManager
	Metrics    *metrics.Metrics

	log *slog.Logger
}

// NewServer подключается к базе и Redis по конфигу и собирает сервер.
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if cfg.Env == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := database.Open(cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s connect failed: %w", cfg.StoreDriver, err)
	}

	var (
		rdb       *redis.Client
		events    docstore.Broker
		blacklist middleware.TokenBlacklist = middleware.NewMemoryBlacklist()
	)
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis connect failed: %w", err)
		}
		events = realtime.NewRedisBus(rdb, log)
		blacklist = middleware.NewRedisBlacklist(rdb)
	} else {
		log.Warn("REDIS_URL not set, events and revoked tokens stay in this process")
	}

	return New(Options{
		DB:         database.NewDatabase(gdb, events),
		Redis:      rdb,
		JWTManager: auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Blacklist:  blacklist,
		Metrics:    metrics.New(),
		Logger:     log,
		IsAdmin:    cfg.IsAdmin,

		AllowedOrigins: cfg.AllowedOrigins,
	}), nil
}

// New собирает hub, обработчики и роутер из готовых зависимостей.
func New(o Options) *Server {
	log := o.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	if o.Blacklist == nil {
		o.Blacklist = middleware.NewMemoryBlacklist()
	}

	hub := realtime.NewHub(o.DB, log, o.Metrics)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), requestMetrics(o.Metrics))
	APIEndpoints(router, Endpoints{
		Auth:      handlers.NewAuthHandler(o.DB, o.JWTManager, o.Blacklist, log),
		Documents: handlers.NewDocumentHandler(o.DB, o.IsAdmin, o.Metrics, log),
		WebSocket: handlers.NewWebSocketHandler(hub, o.AllowedOrigins),
		Health:    handlers.Health(o.DB),
		Metrics:   o.Metrics.Handler(),
		JWT:       o.JWTManager,
		Blacklist: o.Blacklist,
	})

	return &Server{
		Router:     router,
		DB:         o.DB,
		Redis:      o.Redis,
		Hub:        hub,
		JWTManager: o.JWTManager,
		Metrics:    o.Metrics,
		log:        log,
	}
}

// Run обслуживает addr, пока не отменят ctx, затем мягко останавливается.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.Hub.Run()
	defer s.Hub.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	errs = append(errs, s.DB.Close())
	return errors.Join(errs...)
}
