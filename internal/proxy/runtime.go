package proxy

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
)

// runtimeClient talks to the primary model runtime's native generate API.
// Inference latency is expected to be high, hence the long timeout.
type runtimeClient struct {
	baseURL    string
	httpClient *http.Client
}

type runtimeGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type runtimeGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type runtimeErrorResponse struct {
	Error string `json:"error"`
}

func newRuntimeClient(config *types.InferenceConfig) *runtimeClient {
	timeout := config.InferenceTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &runtimeClient{
		baseURL:    config.BackendURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// generate invokes the runtime with a single-prompt request
func (r *runtimeClient) generate(ctx context.Context, model, system, prompt string, options map[string]any) (*runtimeGenerateResponse, error) {
	body := runtimeGenerateRequest{
		Model:   model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: options,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal runtime request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "model runtime unreachable", err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp runtimeErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "model runtime error", errResp.Error)
		}
		return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "model runtime error",
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var gen runtimeGenerateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, fmt.Errorf("failed to decode runtime response: %w", err)
	}
	return &gen, nil
}

// ping checks the runtime answers at all
func (r *runtimeClient) ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
