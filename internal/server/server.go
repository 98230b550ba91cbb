// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nmehta6/riskgate/internal/audit"
	"github.com/nmehta6/riskgate/internal/config"
	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/feedback"
	"github.com/nmehta6/riskgate/internal/graph"
	"github.com/nmehta6/riskgate/internal/idempotency"
	"github.com/nmehta6/riskgate/internal/logging"
	"github.com/nmehta6/riskgate/internal/metrics"
	"github.com/nmehta6/riskgate/internal/pipeline"
	"github.com/nmehta6/riskgate/internal/queue"
	"github.com/nmehta6/riskgate/internal/ratelimit"
	"github.com/nmehta6/riskgate/internal/realtime"
	"github.com/nmehta6/riskgate/internal/riskprofile"
	"github.com/nmehta6/riskgate/internal/scoring"
	"github.com/nmehta6/riskgate/internal/thresholds"
	"github.com/nmehta6/riskgate/internal/velocity"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and the decision engine's moving parts.
type Server struct {
	cfg    *config.Config
	domain event.Domain

	queue    queue.Store
	gate     idempotency.Store
	velocity velocity.Store
	graph    graph.Store
	profiles riskprofile.Store
	global   thresholds.Store
	auditLog audit.Store
	feedback feedback.Store

	scorer        *scoring.Orchestrator
	pipeline      *pipeline.Pipeline
	worker        *pipeline.Worker
	controller    *feedback.Controller
	feedbackTimer *feedback.Timer
	stripe        *feedback.StripeAdapter // nil unless webhook secret configured
	hub           *realtime.Hub
	limiter       *ratelimit.Limiter // nil when intake rate limiting disabled

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScorer injects a scoring orchestrator (for testing)
func WithScorer(o *scoring.Orchestrator) Option {
	return func(s *Server) {
		s.scorer = o
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set scorer/logger)
	for _, opt := range opts {
		opt(s)
	}

	domain, err := event.ParseDomain(cfg.Domain)
	if err != nil {
		return nil, err
	}
	s.domain = domain
	params := riskprofile.ParamsFor(domain)

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		queueStore := queue.NewPostgresStore(db)
		gateStore := idempotency.NewPostgresStore(db)
		velocityStore := velocity.NewPostgresStore(db)
		graphStore := graph.NewPostgresStore(db)
		profileStore := riskprofile.NewPostgresStore(db, params)
		globalStore := thresholds.NewPostgresStore(db)
		auditStore := audit.NewPostgresStore(db)
		feedbackStore := feedback.NewPostgresStore(db)

		// Each store can create its own table; cmd/migrate owns the full
		// schema in production.
		for name, m := range map[string]interface{ Migrate(context.Context) error }{
			"queue":       queueStore,
			"idempotency": gateStore,
			"velocity":    velocityStore,
			"graph":       graphStore,
			"profiles":    profileStore,
			"thresholds":  globalStore,
			"audit":       auditStore,
			"feedback":    feedbackStore,
		} {
			if err := m.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate store", "store", name, "error", err)
			}
		}

		s.queue = queueStore
		s.gate = gateStore
		s.velocity = velocityStore
		s.graph = graphStore
		s.profiles = profileStore
		s.global = globalStore
		s.auditLog = auditStore
		s.feedback = feedbackStore
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.queue = queue.NewMemoryStore()
		s.gate = idempotency.NewMemoryStore()
		s.velocity = velocity.NewMemoryStore()
		s.graph = graph.NewMemoryStore()
		s.profiles = riskprofile.NewMemoryStore(params)
		s.global = thresholds.NewMemoryStore()
		s.auditLog = audit.NewMemoryStore()
		s.feedback = feedback.NewMemoryStore()
	}

	// Load scoring models unless injected
	if s.scorer == nil {
		champion, err := scoring.LoadModel(cfg.ChampionModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load champion model: %w", err)
		}

		var challenger scoring.Model
		if cfg.ChallengerModelPath != "" {
			c, err := scoring.LoadModel(cfg.ChallengerModelPath)
			if err != nil {
				s.logger.Warn("failed to load challenger model, running champion only", "error", err)
			} else {
				challenger = c
				s.logger.Info("challenger model loaded (shadow mode)", "model", c.Name())
			}
		}

		s.scorer, err = scoring.NewOrchestrator(champion, challenger)
		if err != nil {
			return nil, err
		}
		s.logger.Info("champion model loaded", "model", champion.Name(), "domain", domain)
	}

	// Decision feed for WebSocket streaming
	s.hub = realtime.NewHub(s.logger)

	// The pipeline and its queue consumer
	s.pipeline = pipeline.New(pipeline.Config{
		Gate:     s.gate,
		Velocity: s.velocity,
		Graph:    s.graph,
		Scorer:   s.scorer,
		Profiles: s.profiles,
		Global:   s.global,
		Audit:    s.auditLog,
		Feed:     s.hub,
		Logger:   s.logger,
	})
	s.worker = pipeline.NewWorker(s.pipeline, s.queue, cfg.BatchSize, cfg.PollInterval, s.logger)

	// Feedback drift controller
	s.controller = feedback.NewController(s.feedback, s.global, s.profiles, cfg.FeedbackWindowSize, s.logger)
	s.feedbackTimer = feedback.NewTimer(s.controller, cfg.FeedbackInterval, s.logger)

	if cfg.StripeWebhookSecret != "" {
		s.stripe = feedback.NewStripeAdapter(cfg.StripeWebhookSecret)
		s.logger.Info("stripe dispute feedback enabled")
	}

	if cfg.IntakeRateLimit > 0 {
		rl := ratelimit.DefaultConfig()
		rl.RequestsPerMinute = cfg.IntakeRateLimit
		s.limiter = ratelimit.New(rl)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/api", s.infoHandler)

	// WebSocket decision feed
	s.router.GET("/ws/decisions", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}

	// Event intake
	v1.POST("/transactions", s.enqueueTransaction)

	// Decision reads
	v1.GET("/decisions", s.listDecisions)
	v1.GET("/decisions/:txn_id", s.getDecision)

	// Adaptive state reads
	v1.GET("/profiles/:payer", s.getProfile)
	v1.GET("/thresholds", s.getGlobalThresholds)

	// Ground-truth feedback
	v1.POST("/feedback", s.ingestFeedback)
	if s.stripe != nil {
		v1.POST("/webhooks/stripe", s.stripeWebhook)
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"domain", s.domain,
			"champion", s.scorer.ChampionName(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start the decision feed, the queue consumer, and the drift controller
	go s.hub.Run(runCtx)
	go s.worker.Start(runCtx)
	go s.feedbackTimer.Start(runCtx)

	// Sample DB pool stats while the server runs
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, worker, timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.worker.Stop()
	s.feedbackTimer.Stop()
	if s.limiter != nil {
		s.limiter.Stop()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
