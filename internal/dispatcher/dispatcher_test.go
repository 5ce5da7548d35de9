package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuaadabdullah/inference-gateway/internal/cache"
	"github.com/fuaadabdullah/inference-gateway/internal/classifier"
	"github.com/fuaadabdullah/inference-gateway/internal/health"
	"github.com/fuaadabdullah/inference-gateway/internal/metrics"
	"github.com/fuaadabdullah/inference-gateway/internal/storage"
	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// memStore is a minimal in-memory cache.Store
type memStore struct {
	mutex sync.Mutex
	data  map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = data
	return nil
}

func (m *memStore) Get(_ context.Context, key string, dest any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	data, ok := m.data[key]
	if !ok {
		return storage.ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (m *memStore) DeletePattern(_ context.Context, pattern string) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var count int64
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
			count++
		}
	}
	return count, nil
}

func (m *memStore) CountPattern(_ context.Context, pattern string) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var count int64
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) Ping(_ context.Context) error                     { return nil }
func (m *memStore) Info(_ context.Context, _ string) (string, error) { return "", nil }
func (m *memStore) Addr() string                                     { return "mem:0" }

// fakeTarget is a scriptable backend.Target
type fakeTarget struct {
	label string
	fail  bool
	calls int
	tiers []types.ComplexityTier
}

func (f *fakeTarget) Label() string { return f.label }

func (f *fakeTarget) Generate(_ context.Context, _ *types.ChatCompletionRequest, tier types.ComplexityTier) (*types.ChatCompletionResponse, error) {
	f.calls++
	f.tiers = append(f.tiers, tier)
	if f.fail {
		return nil, errors.NewGatewayError(errors.ErrBackendUnavailable, f.label+" down")
	}
	finish := "stop"
	return &types.ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%s-%d", f.label, f.calls),
		Object:  "chat.completion",
		Model:   "test-model",
		Choices: []types.Choice{{Message: types.Message{Role: "assistant", Content: "answer from " + f.label}, FinishReason: &finish}},
		Backend: f.label,
	}, nil
}

type fakeReporter struct {
	failures int
}

func (f *fakeReporter) ReportFailure(_ context.Context) { f.failures++ }

type fixture struct {
	dispatcher *Dispatcher
	local      *fakeTarget
	remote     *fakeTarget
	reporter   *fakeReporter
	collector  *metrics.Collector
	state      *health.MemoryStateStore
}

func newFixture(t *testing.T, store cache.Store) *fixture {
	t.Helper()

	logger := utils.NewLogger(&types.LoggingConfig{Level: "error", Format: "text"})
	collector := metrics.NewCollector(100)
	state := health.NewMemoryStateStore()
	local := &fakeTarget{label: "local"}
	remote := &fakeTarget{label: "remote"}
	reporter := &fakeReporter{}

	d := New(
		cache.New(store, &types.CacheConfig{TTL: time.Hour}, logger, collector),
		classifier.New(nil),
		health.NewReader(state, logger),
		reporter,
		local,
		remote,
		collector,
		logger,
	)

	return &fixture{
		dispatcher: d,
		local:      local,
		remote:     remote,
		reporter:   reporter,
		collector:  collector,
		state:      state,
	}
}

func chatRequest(content string) *types.ChatCompletionRequest {
	return &types.ChatCompletionRequest{
		Messages:  []types.Message{{Role: "user", Content: content}},
		RequestID: "req_test",
	}
}

func TestSimpleRoutesLocal(t *testing.T) {
	f := newFixture(t, newMemStore())

	result, err := f.dispatcher.Route(context.Background(), chatRequest("hello"))
	require.NoError(t, err)

	assert.Equal(t, types.TierSimple, result.Tier)
	assert.Equal(t, "local", result.Response.Backend)
	assert.Equal(t, 1, f.local.calls)
	assert.Zero(t, f.remote.calls)
}

func TestComplexRoutesRemoteWithTier(t *testing.T) {
	f := newFixture(t, newMemStore())

	result, err := f.dispatcher.Route(context.Background(), chatRequest("write a recursive fibonacci function in code"))
	require.NoError(t, err)

	assert.Equal(t, types.TierComplex, result.Tier)
	assert.Equal(t, "remote", result.Response.Backend)
	require.Len(t, f.remote.tiers, 1)
	assert.Equal(t, types.TierComplex, f.remote.tiers[0])
	assert.Zero(t, f.local.calls)
}

func TestCacheHitSkipsBackends(t *testing.T) {
	f := newFixture(t, newMemStore())
	ctx := context.Background()
	req := chatRequest("hello")

	first, err := f.dispatcher.Route(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.dispatcher.Route(ctx, chatRequest("hello"))
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.True(t, second.Response.Cached)
	assert.Equal(t, first.Response.FirstChoiceContent(), second.Response.FirstChoiceContent())

	// One backend call total; the repeat was served from cache
	assert.Equal(t, 1, f.local.calls)
	assert.Equal(t, int64(1), f.collector.Get(metrics.CounterCacheHits))
	assert.Equal(t, int64(1), f.collector.Get(metrics.CounterCacheMisses))
}

func TestFailoverDowngradesComplexToLocal(t *testing.T) {
	f := newFixture(t, newMemStore())
	ctx := context.Background()

	require.NoError(t, f.state.Publish(ctx, types.HealthState{
		PrimaryHealthy: false,
		FailoverActive: true,
	}))

	result, err := f.dispatcher.Route(ctx, chatRequest("write a recursive fibonacci function in code"))
	require.NoError(t, err)

	assert.Equal(t, types.TierComplex, result.Tier)
	assert.Equal(t, "local", result.Response.Backend)
	assert.Zero(t, f.remote.calls, "failover must bypass the remote proxy entirely")
}

func TestRemoteFailureFallsBackOnce(t *testing.T) {
	f := newFixture(t, newMemStore())
	f.remote.fail = true

	result, err := f.dispatcher.Route(context.Background(), chatRequest("write a recursive fibonacci function in code"))
	require.NoError(t, err)

	assert.Equal(t, "local", result.Response.Backend)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, 1, f.remote.calls)
	assert.Equal(t, 1, f.local.calls)

	// The remote failure feeds the health monitor's counter
	assert.Equal(t, 1, f.reporter.failures)
	assert.Equal(t, int64(1), f.collector.Get(metrics.CounterFallbackCalls))
}

func TestAllBackendsExhausted(t *testing.T) {
	f := newFixture(t, newMemStore())
	f.remote.fail = true
	f.local.fail = true

	_, err := f.dispatcher.Route(context.Background(), chatRequest("write a recursive fibonacci function in code"))
	require.Error(t, err)

	gatewayErr, ok := err.(*errors.GatewayError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrAllBackendsExhausted, gatewayErr.Code)

	// Exactly one attempt each; nothing retried beyond the single fallback
	assert.Equal(t, 1, f.remote.calls)
	assert.Equal(t, 1, f.local.calls)
	assert.Equal(t, int64(1), f.collector.Get(metrics.CounterExhausted))
}

func TestLocalFailureIsTerminal(t *testing.T) {
	f := newFixture(t, newMemStore())
	f.local.fail = true

	_, err := f.dispatcher.Route(context.Background(), chatRequest("hello"))
	require.Error(t, err)

	// No fallback from local to remote exists
	assert.Equal(t, 1, f.local.calls)
	assert.Zero(t, f.remote.calls)
	assert.Zero(t, f.reporter.failures)
}

func TestFailedRequestsAreNotCached(t *testing.T) {
	f := newFixture(t, newMemStore())
	f.remote.fail = true
	f.local.fail = true
	ctx := context.Background()

	_, err := f.dispatcher.Route(ctx, chatRequest("write a recursive fibonacci function in code"))
	require.Error(t, err)

	// Recovery: backends come back and the same request must hit them
	f.remote.fail = false
	result, err := f.dispatcher.Route(ctx, chatRequest("write a recursive fibonacci function in code"))
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 2, f.remote.calls)
}

func TestNilCacheStoreStillRoutes(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.dispatcher.Route(context.Background(), chatRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "local", result.Response.Backend)

	// Same request again: no cache backend, so the target runs again
	_, err = f.dispatcher.Route(context.Background(), chatRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.local.calls)
}
