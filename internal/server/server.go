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
	"github.com/portsidehq/portside/internal/auth"
	"github.com/portsidehq/portside/internal/config"
	"github.com/portsidehq/portside/internal/health"
	"github.com/portsidehq/portside/internal/idgen"
	"github.com/portsidehq/portside/internal/logging"
	"github.com/portsidehq/portside/internal/metrics"
	"github.com/portsidehq/portside/internal/ratelimit"
	"github.com/portsidehq/portside/internal/realtime"
	"github.com/portsidehq/portside/internal/security"
	"github.com/portsidehq/portside/internal/traces"
	"github.com/portsidehq/portside/internal/upgrade"
	"github.com/portsidehq/portside/internal/validation"
	"github.com/portsidehq/portside/internal/vendors"
	"github.com/portsidehq/portside/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	vendors      *vendors.Service
	requests     *upgrade.Service
	authMgr      *auth.Manager
	dispatcher   *webhooks.Dispatcher
	webhookStore webhooks.Store
	emitter      *webhooks.Emitter
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var vendorStore vendors.Store
	var requestStore upgrade.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		vendorPG := vendors.NewPostgresStore(db)
		if err := vendorPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate vendor store", "error", err)
		}
		vendorStore = vendorPG

		requestPG := upgrade.NewPostgresStore(db)
		if err := requestPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate tier request store", "error", err)
		}
		// Approval commits the decision and the tier change in one tx.
		requestPG.SetTierWriter(vendorPG)
		requestStore = requestPG

		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)

		webhookPG := webhooks.NewPostgresStore(db)
		if err := webhookPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = webhookPG

		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		vendorStore = vendors.NewMemoryStore()
		requestStore = upgrade.NewMemoryStore()
		s.authMgr = auth.NewManager(auth.NewMemoryStore())
		s.webhookStore = webhooks.NewMemoryStore()
	}

	// Webhook delivery
	s.dispatcher = webhooks.NewDispatcher(s.webhookStore)
	s.emitter = webhooks.NewEmitter(s.dispatcher, s.logger)
	s.logger.Info("webhooks enabled")

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Domain services. The vendor service doubles as the account state
	// provider for the tier request workflow.
	s.vendors = vendors.NewService(vendorStore, &profileEventFanout{s.emitter, s.realtimeHub})
	s.requests = upgrade.NewService(requestStore, s.vendors, &requestEventFanout{s.emitter, s.realtimeHub})

	s.logger.Info("API authentication enabled")

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

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

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

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
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

		// Log level based on status code
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

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info endpoints
	s.router.GET("/", s.infoHandler)
	s.router.GET("/api", s.infoHandler)
	s.router.GET("/docs", s.docsRedirectHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	vendorHandler := vendors.NewHandler(s.vendors)
	requestHandler := upgrade.NewHandler(s.requests)
	authHandler := auth.NewHandler(s.authMgr)
	webhookHandler := webhooks.NewHandler(s.webhookStore, s.dispatcher)

	// PUBLIC ROUTES (no auth required)
	// Directory reads, tier catalog, and platform info
	vendorHandler.RegisterPublicRoutes(v1)
	v1.GET("/platform", s.platformHandler)
	v1.GET("/auth/info", authHandler.Info)

	// REGISTRATION (public but returns API key)
	v1.POST("/register", s.registerVendorWithAPIKey)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		// Profile management (ownership enforced by the service layer)
		vendorHandler.RegisterRoutes(protected)

		// Tier change request workflow
		requestHandler.RegisterRoutes(protected)

		// API key management
		protected.GET("/auth/keys", authHandler.ListKeys)
		protected.POST("/auth/keys", authHandler.CreateKey)
		protected.DELETE("/auth/keys/:keyId", authHandler.RevokeKey)
		protected.POST("/auth/keys/:keyId/regenerate", authHandler.RegenerateKey)
		protected.GET("/auth/me", authHandler.GetCurrentAccount)

		// Webhook management (must own the account)
		protected.POST("/accounts/:accountId/webhooks", auth.RequireOwnership(s.authMgr, "accountId"), webhookHandler.CreateWebhook)
		protected.GET("/accounts/:accountId/webhooks", auth.RequireOwnership(s.authMgr, "accountId"), webhookHandler.ListWebhooks)
		protected.DELETE("/accounts/:accountId/webhooks/:webhookId", auth.RequireOwnership(s.authMgr, "accountId"), webhookHandler.DeleteWebhook)
	}

	// ADMIN ROUTES (review surface for tier requests)
	// RequireAdmin checks X-Admin-Secret (or allows any auth in demo mode).
	admin := v1.Group("/admin")
	admin.Use(auth.Middleware(s.authMgr), auth.RequireAdmin())
	{
		requestHandler.RegisterAdminRoutes(admin)
	}
}

// registerVendorWithAPIKey handles POST /v1/register
// This wraps profile creation to also generate and return an API key,
// so a new vendor can start using the authenticated API immediately.
func (s *Server) registerVendorWithAPIKey(c *gin.Context) {
	ctx := c.Request.Context()

	var req vendors.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "companyName and slug are required",
		})
		return
	}

	accountID := idgen.WithPrefix("vnd_")

	p, err := s.vendors.Create(ctx, accountID, req)
	if err != nil {
		if errors.Is(err, vendors.ErrSlugTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "slug_taken",
				"message": "A vendor with this slug already exists",
			})
			return
		}
		if errors.Is(err, vendors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": err.Error(),
			})
			return
		}
		s.logger.Error("failed to create vendor profile", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register vendor",
		})
		return
	}

	rawKey, keyInfo, err := s.authMgr.GenerateKey(ctx, accountID, "Primary key")
	if err != nil {
		s.logger.Error("failed to generate API key", "error", err)
		// Profile was created but key generation failed
		c.JSON(http.StatusCreated, gin.H{
			"profile": p,
			"warning": "Vendor registered but API key generation failed. Contact support.",
		})
		return
	}

	s.logger.Info("vendor registered with API key",
		"account", accountID,
		"slug", p.Slug,
		"keyId", keyInfo.ID,
	)

	c.JSON(http.StatusCreated, gin.H{
		"profile": p,
		"apiKey":  rawKey,
		"keyId":   keyInfo.ID,
		"warning": "Store this API key securely. It will not be shown again.",
		"usage":   "Include 'Authorization: Bearer <apiKey>' header in requests.",
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) docsRedirectHandler(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, "https://github.com/portsidehq/portside")
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Portside",
		"description": "Tier-gated vendor directory for the marine industry",
		"version":     "0.1.0",
	})
}

// platformHandler returns platform info and getting-started pointers
func (s *Server) platformHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":    "Portside",
			"version": "0.1.0",
			"baseUrl": s.cfg.PublicBaseURL,
		},
		"instructions": gin.H{
			"register": "POST /v1/register with companyName and slug. The response includes your API key.",
			"edit":     "GET /v1/vendors/{id}/edit to see which fields your tier can change, then PATCH /v1/vendors/{id}",
			"upgrade":  "POST /v1/tier-requests with requestType, requestedTier and vendorNotes",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when OTEL_EXPORTER_OTLP_ENDPOINT is unset)
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export connection pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

	err = s.Shutdown()
	if shutdownTraces != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if terr := shutdownTraces(flushCtx); terr != nil {
			s.logger.Warn("trace exporter shutdown failed", "error", terr)
		}
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
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

// -----------------------------------------------------------------------------
// Event fanout adapters
// -----------------------------------------------------------------------------

// requestEventFanout forwards tier request lifecycle events to webhook
// subscribers and WebSocket clients.
type requestEventFanout struct {
	emitter *webhooks.Emitter
	hub     *realtime.Hub
}

func (f *requestEventFanout) RequestCreated(r *upgrade.Request) {
	f.emitter.EmitTierRequestCreated(r.AccountID, r.ID, string(r.RequestType), string(r.CurrentTier), string(r.RequestedTier))
	f.hub.BroadcastTierRequest(map[string]interface{}{
		"requestId":     r.ID,
		"accountId":     r.AccountID,
		"requestType":   string(r.RequestType),
		"requestedTier": string(r.RequestedTier),
		"status":        string(r.Status),
	})
}

func (f *requestEventFanout) RequestApproved(r *upgrade.Request) {
	f.emitter.EmitTierRequestApproved(r.AccountID, r.ID, string(r.RequestedTier), r.AdminNotes)
	f.hub.BroadcastTierRequest(map[string]interface{}{
		"requestId":     r.ID,
		"accountId":     r.AccountID,
		"requestedTier": string(r.RequestedTier),
		"status":        string(r.Status),
	})
}

func (f *requestEventFanout) RequestRejected(r *upgrade.Request) {
	f.emitter.EmitTierRequestRejected(r.AccountID, r.ID, r.RejectionReason)
	f.hub.BroadcastTierRequest(map[string]interface{}{
		"requestId":     r.ID,
		"accountId":     r.AccountID,
		"requestedTier": string(r.RequestedTier),
		"status":        string(r.Status),
	})
}

func (f *requestEventFanout) RequestCancelled(r *upgrade.Request) {
	f.emitter.EmitTierRequestCancelled(r.AccountID, r.ID)
	f.hub.BroadcastTierRequest(map[string]interface{}{
		"requestId":     r.ID,
		"accountId":     r.AccountID,
		"requestedTier": string(r.RequestedTier),
		"status":        string(r.Status),
	})
}

// profileEventFanout forwards vendor profile events to webhook subscribers
// and WebSocket clients.
type profileEventFanout struct {
	emitter *webhooks.Emitter
	hub     *realtime.Hub
}

func (f *profileEventFanout) ProfileUpdated(p *vendors.Profile, changed []string) {
	f.emitter.EmitVendorUpdated(p.AccountID, p.ID, changed)
	f.hub.BroadcastVendorUpdate(map[string]interface{}{
		"profileId":     p.ID,
		"accountId":     p.AccountID,
		"tier":          string(p.Tier),
		"changedFields": changed,
	})
}

func (f *profileEventFanout) ProfilePublished(p *vendors.Profile) {
	f.emitter.EmitVendorPublished(p.AccountID, p.ID, p.Slug)
	f.hub.Broadcast(&realtime.Event{
		Type:      realtime.EventVendorPublished,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"profileId": p.ID,
			"accountId": p.AccountID,
			"slug":      p.Slug,
			"tier":      string(p.Tier),
		},
	})
}
