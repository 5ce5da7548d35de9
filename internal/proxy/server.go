package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fuaadabdullah/inference-gateway/internal/backend"
	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// generator abstracts the model runtime for tests
type generator interface {
	generate(ctx context.Context, model, system, prompt string, options map[string]any) (*runtimeGenerateResponse, error)
	ping(ctx context.Context) error
}

// Server is the internal-only inference proxy fronting the primary model
// cluster. Not reachable by end clients; only the routing dispatcher calls
// it, across a private network boundary.
type Server struct {
	config   *types.ProxyConfig
	runtime  generator
	resolver *modelResolver
	sem      *semaphore
	logger   *utils.Logger
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates the proxy HTTP server
func NewServer(config *types.ProxyConfig, logger *utils.Logger) *Server {
	return newServerWithRuntime(config, newRuntimeClient(&config.Inference), logger)
}

func newServerWithRuntime(config *types.ProxyConfig, runtime generator, logger *utils.Logger) *Server {
	if logger.GetLevel() == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:   config,
		runtime:  runtime,
		resolver: newModelResolver(&config.Inference),
		sem:      newSemaphore(config.Inference.MaxConcurrent, config.Inference.AcquireTimeout),
		logger:   logger,
		router:   router,
	}

	router.GET("/health", s.healthCheck)

	authed := router.Group("/")
	authed.Use(authMiddleware(&config.Auth, logger))
	{
		authed.POST("/v1/chat/completions", s.chatCompletions)
	}

	return s
}

// Start starts the proxy server and blocks until shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting inference proxy")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the proxy server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down inference proxy")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the gin engine for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthCheck reports the proxy's capabilities and backing runtime
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"backend_url":       s.config.Inference.BackendURL,
		"available_tiers":   s.resolver.availableTiers(),
		"concurrency_limit": s.sem.capacity(),
		"in_flight":         s.sem.inFlight(),
	})
}

// chatCompletions executes one inference under the concurrency bound
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

	model := s.resolver.resolve(&req)
	system, prompt := backend.FlattenMessages(req.Messages)

	// Queue for a permit; a cancelled client releases nothing because the
	// permit is only held around the runtime call.
	if err := s.sem.acquire(c.Request.Context()); err != nil {
		if gatewayErr, ok := err.(*errors.GatewayError); ok {
			s.respondError(c, gatewayErr)
			return
		}
		s.respondError(c, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "Request cancelled while queued", err.Error()))
		return
	}
	defer s.sem.release()

	var options map[string]any
	if req.MaxTokens != nil || req.Temperature != nil {
		options = make(map[string]any)
		if req.MaxTokens != nil {
			options["num_predict"] = *req.MaxTokens
		}
		if req.Temperature != nil {
			options["temperature"] = *req.Temperature
		}
	}

	start := time.Now()
	s.logger.WithFields(logrus.Fields{
		"model":      model,
		"model_hint": req.ModelHint,
	}).Info("Executing inference")

	gen, err := s.runtime.generate(c.Request.Context(), model, system, prompt, options)
	if err != nil {
		s.logger.WithError(err).Warn("Inference failed")
		s.respondError(c, err)
		return
	}
	if gen.Response == "" {
		s.respondError(c, errors.NewGatewayError(errors.ErrBackendUnavailable, "Model runtime returned no text"))
		return
	}

	usage := types.Usage{
		PromptTokens:     gen.PromptEvalCount,
		CompletionTokens: gen.EvalCount,
	}
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		usage = utils.EstimateUsage(system+prompt, gen.Response)
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	finish := "stop"
	c.JSON(http.StatusOK, &types.ChatCompletionResponse{
		ID:      "chatcmpl-" + utils.GenerateRequestID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.Choice{
			{
				Index:        0,
				Message:      types.Message{Role: "assistant", Content: gen.Response},
				FinishReason: &finish,
			},
		},
		Usage:     usage,
		LatencyMs: time.Since(start).Milliseconds(),
	})
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
