package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

const testServiceSecret = "internal-shared-secret"

type generateCall struct {
	model  string
	system string
	prompt string
}

// fakeGenerator captures generate calls and tracks peak concurrency
type fakeGenerator struct {
	mutex    sync.Mutex
	calls    []generateCall
	response *runtimeGenerateResponse
	err      error

	block        chan struct{}
	inFlight     int32
	peakInFlight int32
}

func (f *fakeGenerator) generate(_ context.Context, model, system, prompt string, _ map[string]any) (*runtimeGenerateResponse, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peakInFlight)
		if current <= peak || atomic.CompareAndSwapInt32(&f.peakInFlight, peak, current) {
			break
		}
	}

	f.mutex.Lock()
	f.calls = append(f.calls, generateCall{model: model, system: system, prompt: prompt})
	resp, err := f.response, f.err
	f.mutex.Unlock()

	if f.block != nil {
		<-f.block
	}
	if err != nil {
		return nil, err
	}
	if resp != nil {
		copied := *resp
		return &copied, nil
	}
	return &runtimeGenerateResponse{Model: model, Response: "generated text", Done: true}, nil
}

func (f *fakeGenerator) ping(_ context.Context) error { return nil }

func (f *fakeGenerator) lastCall(t *testing.T) generateCall {
	t.Helper()
	f.mutex.Lock()
	defer f.mutex.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func newProxyFixture(t *testing.T, runtime *fakeGenerator, mutate func(*types.ProxyConfig)) *Server {
	t.Helper()

	config := &types.ProxyConfig{
		Auth:    types.AuthConfig{ServiceSecret: testServiceSecret},
		Logging: types.LoggingConfig{Level: "error", Format: "text"},
		Inference: types.InferenceConfig{
			BackendURL:   "http://model-runtime:11434",
			DefaultModel: "llama3.1:8b",
			TierModels: map[string]string{
				"medium":  "llama3.1:8b",
				"complex": "qwen2.5:32b",
			},
			MaxConcurrent: 2,
		},
	}
	if mutate != nil {
		mutate(config)
	}

	return newServerWithRuntime(config, runtime, utils.NewLogger(&config.Logging))
}

func doChat(server *Server, headers map[string]string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func proxyChatBody(messages ...types.Message) map[string]any {
	return map[string]any{"messages": messages}
}

func userTurn(content string) types.Message {
	return types.Message{Role: "user", Content: content}
}

func TestProxyAuth(t *testing.T) {
	runtime := &fakeGenerator{}
	server := newProxyFixture(t, runtime, nil)
	body := proxyChatBody(userTurn("hello"))

	t.Run("missing credentials", func(t *testing.T) {
		w := doChat(server, nil, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong shared secret", func(t *testing.T) {
		w := doChat(server, map[string]string{"X-API-Key": "not-the-secret"}, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("shared secret accepted", func(t *testing.T) {
		w := doChat(server, map[string]string{"X-API-Key": testServiceSecret}, body)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("service token accepted", func(t *testing.T) {
		token := signedServiceToken(t, testServiceSecret, time.Now().Add(time.Minute))
		w := doChat(server, map[string]string{"Authorization": "Bearer " + token}, body)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("token signed with wrong secret", func(t *testing.T) {
		token := signedServiceToken(t, "some-other-secret", time.Now().Add(time.Minute))
		w := doChat(server, map[string]string{"Authorization": "Bearer " + token}, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signedServiceToken(t, testServiceSecret, time.Now().Add(-time.Minute))
		w := doChat(server, map[string]string{"Authorization": "Bearer " + token}, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func signedServiceToken(t *testing.T, secret string, expiry time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "gateway",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Second)),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestModelResolution(t *testing.T) {
	authed := map[string]string{"X-API-Key": testServiceSecret}

	t.Run("tier hint wins", func(t *testing.T) {
		runtime := &fakeGenerator{}
		server := newProxyFixture(t, runtime, nil)

		body := proxyChatBody(userTurn("hello"))
		body["model_hint"] = "complex"
		body["model"] = "llama"
		w := doChat(server, authed, body)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "qwen2.5:32b", runtime.lastCall(t).model)
	})

	t.Run("substring match on requested model", func(t *testing.T) {
		runtime := &fakeGenerator{}
		server := newProxyFixture(t, runtime, nil)

		body := proxyChatBody(userTurn("hello"))
		body["model"] = "qwen2.5"
		w := doChat(server, authed, body)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "qwen2.5:32b", runtime.lastCall(t).model)
	})

	t.Run("falls back to default", func(t *testing.T) {
		runtime := &fakeGenerator{}
		server := newProxyFixture(t, runtime, nil)

		body := proxyChatBody(userTurn("hello"))
		body["model"] = "gpt-4o"
		w := doChat(server, authed, body)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "llama3.1:8b", runtime.lastCall(t).model)
	})

	t.Run("unknown hint falls through", func(t *testing.T) {
		runtime := &fakeGenerator{}
		server := newProxyFixture(t, runtime, nil)

		body := proxyChatBody(userTurn("hello"))
		body["model_hint"] = "gigantic"
		w := doChat(server, authed, body)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "llama3.1:8b", runtime.lastCall(t).model)
	})
}

func TestPromptTranslation(t *testing.T) {
	runtime := &fakeGenerator{}
	server := newProxyFixture(t, runtime, nil)
	authed := map[string]string{"X-API-Key": testServiceSecret}

	body := proxyChatBody(
		types.Message{Role: "system", Content: "You are terse."},
		userTurn("first question"),
		types.Message{Role: "assistant", Content: "an earlier answer"},
		userTurn("second question"),
	)
	w := doChat(server, authed, body)
	require.Equal(t, http.StatusOK, w.Code)

	call := runtime.lastCall(t)
	assert.Equal(t, "You are terse.", call.system)
	assert.Equal(t, "first question\nsecond question", call.prompt)
}

func TestUsageFromRuntimeCounts(t *testing.T) {
	runtime := &fakeGenerator{response: &runtimeGenerateResponse{
		Response:        "four score and seven",
		Done:            true,
		PromptEvalCount: 12,
		EvalCount:       5,
	}}
	server := newProxyFixture(t, runtime, nil)

	w := doChat(server, map[string]string{"X-API-Key": testServiceSecret}, proxyChatBody(userTurn("hello")))
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
}

func TestUsageSynthesizedWhenRuntimeOmitsCounts(t *testing.T) {
	// 20-char completion, 8-char prompt, no system turn
	runtime := &fakeGenerator{response: &runtimeGenerateResponse{
		Response: "12345678901234567890",
		Done:     true,
	}}
	server := newProxyFixture(t, runtime, nil)

	w := doChat(server, map[string]string{"X-API-Key": testServiceSecret}, proxyChatBody(userTurn("12345678")))
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestEmptyRuntimeResponseIs503(t *testing.T) {
	runtime := &fakeGenerator{response: &runtimeGenerateResponse{Response: "", Done: true}}
	server := newProxyFixture(t, runtime, nil)

	w := doChat(server, map[string]string{"X-API-Key": testServiceSecret}, proxyChatBody(userTurn("hello")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "BACKEND_UNAVAILABLE")
}

func TestRuntimeErrorsPropagate(t *testing.T) {
	runtime := &fakeGenerator{err: errors.NewGatewayError(errors.ErrBackendUnavailable, "model runtime unreachable")}
	server := newProxyFixture(t, runtime, nil)

	w := doChat(server, map[string]string{"X-API-Key": testServiceSecret}, proxyChatBody(userTurn("hello")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRejectsEmptyMessages(t *testing.T) {
	server := newProxyFixture(t, &fakeGenerator{}, nil)

	w := doChat(server, map[string]string{"X-API-Key": testServiceSecret}, map[string]any{"messages": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConcurrencyBound(t *testing.T) {
	runtime := &fakeGenerator{block: make(chan struct{})}
	server := newProxyFixture(t, runtime, func(c *types.ProxyConfig) {
		c.Inference.MaxConcurrent = 2
	})
	authed := map[string]string{"X-API-Key": testServiceSecret}

	const requests = 5
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := doChat(server, authed, proxyChatBody(userTurn("hello")))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}

	// Let two requests reach the runtime and the rest queue on the permit
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runtime.inFlight) == 2
	}, time.Second, 5*time.Millisecond)

	close(runtime.block)
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&runtime.peakInFlight),
		"runtime must never see more than max_concurrent requests at once")
	runtime.mutex.Lock()
	assert.Len(t, runtime.calls, requests)
	runtime.mutex.Unlock()
}

func TestAcquireTimeoutReturns503(t *testing.T) {
	runtime := &fakeGenerator{block: make(chan struct{})}
	server := newProxyFixture(t, runtime, func(c *types.ProxyConfig) {
		c.Inference.MaxConcurrent = 1
		c.Inference.AcquireTimeout = 20 * time.Millisecond
	})
	authed := map[string]string{"X-API-Key": testServiceSecret}

	done := make(chan struct{})
	go func() {
		defer close(done)
		doChat(server, authed, proxyChatBody(userTurn("holds the permit")))
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runtime.inFlight) == 1
	}, time.Second, 5*time.Millisecond)

	w := doChat(server, authed, proxyChatBody(userTurn("times out waiting")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "CONCURRENCY_TIMEOUT")

	close(runtime.block)
	<-done
}

func TestHealthEndpoint(t *testing.T) {
	server := newProxyFixture(t, &fakeGenerator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, []any{"complex", "medium"}, body["available_tiers"])
	assert.Equal(t, float64(2), body["concurrency_limit"])
	assert.Equal(t, float64(0), body["in_flight"])
}
