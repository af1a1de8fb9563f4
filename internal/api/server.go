package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/install"
	httpProvider "github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ConfirmSource looks up pending install confirmations.
type ConfirmSource interface {
	ConfirmRecord(key string) (*install.Confirmation, string, bool)
}

// Deps are the components the API exposes. Any of them may be nil; the
// matching routes then answer 503.
type Deps struct {
	Commands *command.Registry
	Confirms ConfirmSource
	Tabs     tabs.Controller
	Trusted  *httpProvider.Handler
	Gatherer prometheus.Gatherer
	Metrics  *monitoring.Metrics
	Tracer   *tracing.Tracer
	Logger   *zap.Logger
}

// Config holds the listener and middleware settings.
type Config struct {
	Addr        string
	Root        string
	RateLimit   config.RateLimitConfig
	Development bool
}

// ConfigFrom maps host configuration onto the API.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Addr:        c.Server.Host + ":" + c.Server.Port,
		Root:        c.Extension.Root,
		RateLimit:   c.RateLimit,
		Development: c.Logging.Development,
	}
}

// Server is the host's HTTP surface.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	deps     Deps
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// Bridges live until Shutdown, not until the upgrade request returns.
	base    context.Context
	stop    context.CancelFunc
	bridges sync.WaitGroup
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	base, stop := context.WithCancel(context.Background())
	s := &Server{
		deps:   deps,
		logger: deps.Logger.Named("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		base: base,
		stop: stop,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(deps.Tracer))
	}
	router.Use(monitoring.Middleware(deps.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Root)))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/health", s.health)
	router.GET("/confirm/:key", s.confirm)
	router.POST("/commands/:name", s.command)
	router.GET("/bridge", s.bridge)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	s.router = router
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes open bridges and waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	err := s.http.Shutdown(ctx)
	s.stop()

	done := make(chan struct{})
	go func() {
		s.bridges.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
