package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fuaadabdullah/inference-gateway/internal/cache"
	"github.com/fuaadabdullah/inference-gateway/internal/health"
	"github.com/fuaadabdullah/inference-gateway/internal/metrics"
	"github.com/fuaadabdullah/inference-gateway/internal/storage"
	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// Server is the public-facing HTTP shell of the routing dispatcher
type Server struct {
	mutex      sync.RWMutex
	config     *types.GatewayConfig
	dispatcher *Dispatcher
	cache      *cache.ResponseCache
	collector  *metrics.Collector
	health     *health.Reader
	audit      *storage.AuditLog
	logger     *utils.Logger
	router     *gin.Engine
	server     *http.Server
}

// NewServer creates the dispatcher HTTP server and wires its routes
func NewServer(
	config *types.GatewayConfig,
	d *Dispatcher,
	responseCache *cache.ResponseCache,
	collector *metrics.Collector,
	healthReader *health.Reader,
	audit *storage.AuditLog,
	logger *utils.Logger,
) *Server {
	if logger.GetLevel() == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())

	s := &Server{
		config:     config,
		dispatcher: d,
		cache:      responseCache,
		collector:  collector,
		health:     healthReader,
		audit:      audit,
		logger:     logger,
		router:     router,
	}
	s.setupRoutes()

	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	authed := s.router.Group("/")
	authed.Use(APIKeyAuth(s.apiKeys, s.collector, s.logger))
	{
		authed.POST("/v1/chat/completions", s.chatCompletions)
		authed.GET("/cache/stats", s.cacheStats)
		authed.POST("/cache/clear", s.cacheClear)
		authed.GET("/metrics", s.metricsSnapshot)
	}
}

// apiKeys returns the currently configured API keys; read per request so a
// config reload swaps keys without a restart.
func (s *Server) apiKeys() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.config.Auth.APIKeys
}

// ApplyConfig installs a reloaded configuration. Only hot-swappable fields
// (API keys) take effect; server timeouts keep their boot values.
func (s *Server) ApplyConfig(config *types.GatewayConfig) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.config = config
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting routing dispatcher")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down routing dispatcher")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the gin engine for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthCheck reports overall gateway health including failover state
func (s *Server) healthCheck(c *gin.Context) {
	state := s.health.Current(c.Request.Context())

	s.mutex.RLock()
	backends := s.config.Backends
	s.mutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"primary": gin.H{
			"url":     backends.PrimaryURL,
			"healthy": state.PrimaryHealthy,
		},
		"fallback_runtime_url": backends.FallbackRuntimeURL,
		"cache_status":         s.cache.Healthy(c.Request.Context()),
		"failover": gin.H{
			"active": state.FailoverActive,
			"mode":   state.Mode(),
		},
	})
}

// chatCompletions is the OpenAI-compatible completion endpoint
func (s *Server) chatCompletions(c *gin.Context) {
	var req types.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.NewGatewayErrorWithDetails(errors.ErrInvalidRequest, "Invalid request format", err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		s.respondError(c, errors.NewGatewayError(errors.ErrInvalidRequest, "messages must not be empty"))
		return
	}

	req.RequestID = GetRequestIDFromContext(c)
	req.ModelHint = "" // internal field, never client-settable

	result, err := s.dispatcher.Route(c.Request.Context(), &req)
	if err != nil {
		s.recordAudit(req.RequestID, result, http.StatusServiceUnavailable)
		s.respondError(c, err)
		return
	}

	s.recordAudit(req.RequestID, result, http.StatusOK)
	c.JSON(http.StatusOK, result.Response)
}

// cacheStats reports cache key counts and backend info
func (s *Server) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats(c.Request.Context()))
}

// cacheClear removes every cached response
func (s *Server) cacheClear(c *gin.Context) {
	cleared, err := s.cache.Clear(c.Request.Context())
	if err != nil {
		s.respondError(c, errors.NewGatewayErrorWithDetails(errors.ErrCacheError, "Failed to clear cache", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

// metricsSnapshot returns the full metrics snapshot
func (s *Server) metricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Snapshot())
}

func (s *Server) recordAudit(requestID string, result *Result, status int) {
	if s.audit == nil {
		return
	}
	rec := storage.RequestRecord{
		RequestID: requestID,
		Status:    status,
	}
	if result != nil {
		rec.Tier = string(result.Tier)
		rec.CacheHit = result.CacheHit
		rec.FallbackUsed = result.FallbackUsed
		rec.LatencyMs = result.Duration.Milliseconds()
		if result.Response != nil {
			rec.Backend = result.Response.Backend
		}
	}
	s.audit.Record(rec)
}

func (s *Server) respondError(c *gin.Context, err error) {
	gatewayErr, ok := err.(*errors.GatewayError)
	if !ok {
		gatewayErr = errors.NewGatewayError(errors.ErrInternalServer, err.Error())
	}

	c.JSON(gatewayErr.HTTPStatusCode, gin.H{
		"error": gin.H{
			"code":    gatewayErr.Code,
			"message": gatewayErr.Message,
			"details": gatewayErr.Details,
		},
	})
}
