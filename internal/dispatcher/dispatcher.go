// Package dispatcher implements the routing dispatcher service
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/fuaadabdullah/inference-gateway/internal/backend"
	"github.com/fuaadabdullah/inference-gateway/internal/cache"
	"github.com/fuaadabdullah/inference-gateway/internal/classifier"
	"github.com/fuaadabdullah/inference-gateway/internal/health"
	"github.com/fuaadabdullah/inference-gateway/internal/metrics"
	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// FailureReporter receives request-path backend failures; the health
// monitor satisfies it.
type FailureReporter interface {
	ReportFailure(ctx context.Context)
}

// Result describes how a request was served, for audit and logging
type Result struct {
	Response     *types.ChatCompletionResponse
	Tier         types.ComplexityTier
	CacheHit     bool
	FallbackUsed bool
	Duration     time.Duration
}

// Dispatcher is the single entry point for routing chat requests
type Dispatcher struct {
	cache     *cache.ResponseCache
	health    *health.Reader
	reporter  FailureReporter
	local     backend.Target
	remote    backend.Target
	collector *metrics.Collector
	logger    *utils.Logger

	mutex sync.RWMutex
	class *classifier.Classifier
}

// New creates a dispatcher
func New(
	responseCache *cache.ResponseCache,
	class *classifier.Classifier,
	healthReader *health.Reader,
	reporter FailureReporter,
	local backend.Target,
	remote backend.Target,
	collector *metrics.Collector,
	logger *utils.Logger,
) *Dispatcher {
	return &Dispatcher{
		cache:     responseCache,
		class:     class,
		health:    healthReader,
		reporter:  reporter,
		local:     local,
		remote:    remote,
		collector: collector,
		logger:    logger,
	}
}

// SetClassifier swaps the pattern vocabulary on config reload
func (d *Dispatcher) SetClassifier(class *classifier.Classifier) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.class = class
}

func (d *Dispatcher) classifier() *classifier.Classifier {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.class
}

// Route serves one chat request: cache lookup, classification, failover
// check, backend selection with at most one local fallback call, metrics
// and cache write-back.
func (d *Dispatcher) Route(ctx context.Context, req *types.ChatCompletionRequest) (*Result, error) {
	start := time.Now()
	d.collector.Increment(metrics.CounterTotalRequests, 1)

	lastUser, _ := req.LastUserContent()
	key := cache.Key(req.Model, lastUser)

	if cached, ok := d.cache.Get(ctx, key); ok {
		d.collector.Increment(metrics.CounterCacheHits, 1)
		cached.Cached = true
		cached.RequestID = req.RequestID
		return &Result{
			Response: cached,
			CacheHit: true,
			Duration: time.Since(start),
		}, nil
	}
	d.collector.Increment(metrics.CounterCacheMisses, 1)

	tier := d.classifier().Classify(req.Messages)
	d.collector.RecordTier(string(tier))

	state := d.health.Current(ctx)
	target := d.selectTarget(tier, state)

	resp, fallbackUsed, err := d.invoke(ctx, target, req, tier)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	d.collector.RecordDuration(resp.Backend, elapsed)

	resp.RequestID = req.RequestID
	d.cache.Put(ctx, key, resp)

	return &Result{
		Response:     resp,
		Tier:         tier,
		FallbackUsed: fallbackUsed,
		Duration:     elapsed,
	}, nil
}

// selectTarget picks the backend. Active failover downgrades every tier to
// the local model; otherwise only SIMPLE stays local.
func (d *Dispatcher) selectTarget(tier types.ComplexityTier, state types.HealthState) backend.Target {
	if state.FailoverActive {
		return d.local
	}
	if tier == types.TierSimple {
		return d.local
	}
	return d.remote
}

// invoke executes the target, applying the single remote-to-local fallback
// retry. A failed local call is terminal either way.
func (d *Dispatcher) invoke(ctx context.Context, target backend.Target, req *types.ChatCompletionRequest, tier types.ComplexityTier) (*types.ChatCompletionResponse, bool, error) {
	d.logger.LogBackendCall(target.Label(), req.Model, req.RequestID)

	callStart := time.Now()
	resp, err := target.Generate(ctx, req, tier)
	d.logger.LogBackendResponse(target.Label(), req.RequestID, time.Since(callStart), err)

	if err == nil {
		return resp, false, nil
	}

	d.collector.RecordBackendError(target.Label())

	if target.Label() != d.remote.Label() {
		return nil, false, err
	}

	// Remote failures feed the shared failure counter so the monitor sees
	// request-path evidence, not just probe results.
	if d.reporter != nil {
		d.reporter.ReportFailure(ctx)
	}

	d.collector.Increment(metrics.CounterFallbackCalls, 1)
	d.logger.WithRequestID(req.RequestID).WithError(err).Warn("Remote backend failed, attempting local fallback")

	fallStart := time.Now()
	resp, ferr := d.local.Generate(ctx, req, tier)
	d.logger.LogBackendResponse(d.local.Label(), req.RequestID, time.Since(fallStart), ferr)

	if ferr != nil {
		d.collector.RecordBackendError(d.local.Label())
		d.collector.Increment(metrics.CounterExhausted, 1)
		return nil, true, errors.NewGatewayErrorWithDetails(
			errors.ErrAllBackendsExhausted,
			"No backend produced a usable response",
			ferr.Error(),
		)
	}
	return resp, true, nil
}
