package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// Local runs completions against the on-host fallback model runtime. It is
// the degraded path: small model, no queueing tier, always available.
type Local struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *utils.Logger
}

// Ollama-style generate API structures
type localGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type localGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type localErrorResponse struct {
	Error string `json:"error"`
}

// NewLocal creates the local fallback target
func NewLocal(config *types.BackendsConfig, logger *utils.Logger) *Local {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Local{
		baseURL:    config.FallbackRuntimeURL,
		model:      config.FallbackModel,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Label identifies this target in metrics
func (l *Local) Label() string { return "local" }

// BaseURL returns the runtime address for /health reporting
func (l *Local) BaseURL() string { return l.baseURL }

// Generate translates the chat request into the runtime's single-prompt
// format, invokes it, and translates the result back into the chat shape.
func (l *Local) Generate(ctx context.Context, req *types.ChatCompletionRequest, _ types.ComplexityTier) (*types.ChatCompletionResponse, error) {
	system, prompt := FlattenMessages(req.Messages)

	body := localGenerateRequest{
		Model:  l.model,
		Prompt: prompt,
		System: system,
		Stream: false,
	}
	if req.MaxTokens != nil || req.Temperature != nil {
		body.Options = make(map[string]any)
		if req.MaxTokens != nil {
			body.Options["num_predict"] = *req.MaxTokens
		}
		if req.Temperature != nil {
			body.Options["temperature"] = *req.Temperature
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "local runtime unreachable", err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp localErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "local runtime error", errResp.Error)
		}
		return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "local runtime error",
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var gen localGenerateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, fmt.Errorf("failed to decode runtime response: %w", err)
	}
	if gen.Response == "" {
		return nil, errors.NewGatewayError(errors.ErrBackendUnavailable, "local runtime returned no text")
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
	return &types.ChatCompletionResponse{
		ID:      "chatcmpl-" + utils.GenerateRequestID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   l.model,
		Choices: []types.Choice{
			{
				Index:        0,
				Message:      types.Message{Role: "assistant", Content: gen.Response},
				FinishReason: &finish,
			},
		},
		Usage:     usage,
		Backend:   l.Label(),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
