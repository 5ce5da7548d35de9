package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
)

// Remote forwards requests to the inference proxy fronting the primary
// cluster, authenticated with the internal shared secret and tagged with
// the tier as a model hint.
type Remote struct {
	baseURL         string
	secret          string
	useServiceToken bool
	tokenExpiration time.Duration
	httpClient      *http.Client
}

// NewRemote creates the remote inference proxy target
func NewRemote(config *types.BackendsConfig, auth *types.AuthConfig) *Remote {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	expiration := auth.TokenExpiration
	if expiration <= 0 {
		expiration = 5 * time.Minute
	}
	return &Remote{
		baseURL:         config.PrimaryURL,
		secret:          auth.ServiceSecret,
		useServiceToken: auth.UseServiceToken,
		tokenExpiration: expiration,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// Label identifies this target in metrics
func (r *Remote) Label() string { return "remote" }

// BaseURL returns the proxy address for /health reporting
func (r *Remote) BaseURL() string { return r.baseURL }

// Generate forwards the chat request to the proxy with the tier attached
// as model_hint and returns its chat-completion response.
func (r *Remote) Generate(ctx context.Context, req *types.ChatCompletionRequest, tier types.ComplexityTier) (*types.ChatCompletionResponse, error) {
	forwarded := *req
	forwarded.ModelHint = string(tier)

	payload, err := json.Marshal(&forwarded)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proxy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", r.secret)

	if r.useServiceToken {
		token, err := r.serviceToken()
		if err != nil {
			return nil, fmt.Errorf("failed to sign service token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "inference proxy unreachable", err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewGatewayErrorWithDetails(errors.ErrBackendUnavailable, "inference proxy error",
			fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var completion types.ChatCompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("failed to decode proxy response: %w", err)
	}
	if completion.FirstChoiceContent() == "" {
		return nil, errors.NewGatewayError(errors.ErrBackendUnavailable, "inference proxy returned no text")
	}

	completion.Backend = r.Label()
	return &completion, nil
}

// serviceToken mints a short-lived HS256 token signed with the shared
// secret, proving the call crossed the internal boundary recently.
func (r *Remote) serviceToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "gateway",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(r.tokenExpiration)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(r.secret))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
