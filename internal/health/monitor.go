package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// Edge-triggered transition events.
const (
	EventFailoverActivated = "failover_activated"
	EventFailoverRecovered = "failover_recovered"
)

// Prober performs one liveness check against the primary cluster
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber checks GET {url}/health for a 2xx answer
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for the primary inference cluster
func NewHTTPProber(primaryURL string) *HTTPProber {
	return &HTTPProber{
		url:    primaryURL + "/health",
		client: &http.Client{},
	}
}

// Probe performs the liveness check. The caller bounds the timeout via ctx.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Counter receives transition counters; the metrics collector satisfies it
type Counter interface {
	Increment(name string, amount int64)
}

// Monitor runs the recurring probe loop and owns the failover state
// machine. It is the only writer of the shared state; successive ticks are
// strictly ordered because a single goroutine drives them.
type Monitor struct {
	prober  Prober
	store   StateStore
	config  *types.HealthConfig
	logger  *utils.Logger
	counter Counter

	mutex sync.Mutex
	state types.HealthState
}

// NewMonitor creates a health monitor
func NewMonitor(prober Prober, store StateStore, config *types.HealthConfig, logger *utils.Logger, counter Counter) *Monitor {
	return &Monitor{
		prober:  prober,
		store:   store,
		config:  config,
		logger:  logger,
		counter: counter,
		state:   types.HealthState{PrimaryHealthy: true},
	}
}

// Run drives the probe loop until ctx is cancelled. Runs independently of
// request volume; a hanging probe is cut off by the probe timeout so the
// loop can never stall traffic.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.WithField("interval", m.config.Interval.String()).Info("Health monitor started")

	m.tick(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// ReportFailure feeds a request-path backend failure into the same failure
// counter the probe loop uses.
func (m *Monitor) ReportFailure(ctx context.Context) {
	m.recordFailure(ctx)
}

// State returns a copy of the monitor's current view
func (m *Monitor) State() types.HealthState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

func (m *Monitor) tick(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	if err := m.prober.Probe(probeCtx); err != nil {
		m.logger.WithError(err).Debug("Primary probe failed")
		m.recordFailure(ctx)
		return
	}
	m.recordSuccess(ctx)
}

func (m *Monitor) recordSuccess(ctx context.Context) {
	m.mutex.Lock()
	wasFailover := m.state.FailoverActive
	m.state = types.HealthState{
		PrimaryHealthy: true,
		FailoverActive: false,
		LastCheck:      time.Now(),
	}
	state := m.state
	m.mutex.Unlock()

	if wasFailover {
		m.logger.LogFailoverTransition(EventFailoverRecovered, 0)
		if m.counter != nil {
			m.counter.Increment("failover_recovered", 1)
		}
	}

	m.publish(ctx, state)
}

func (m *Monitor) recordFailure(ctx context.Context) {
	m.mutex.Lock()
	m.state.PrimaryHealthy = false
	m.state.ConsecutiveFailures++
	m.state.LastCheck = time.Now()

	activated := false
	if !m.state.FailoverActive && m.state.ConsecutiveFailures >= m.config.MaxFailures {
		m.state.FailoverActive = true
		activated = true
	}
	state := m.state
	m.mutex.Unlock()

	if activated {
		m.logger.LogFailoverTransition(EventFailoverActivated, state.ConsecutiveFailures)
		if m.counter != nil {
			m.counter.Increment("failover_activated", 1)
		}
	}

	m.publish(ctx, state)
}

func (m *Monitor) publish(ctx context.Context, state types.HealthState) {
	if err := m.store.Publish(ctx, state); err != nil {
		m.logger.WithError(err).Warn("Failed to publish health state")
	}
}
