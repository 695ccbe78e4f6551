// Package health reports the relay's operational state over HTTP. The
// verdict is derived from the outbox backlog and broker connectivity so
// orchestrators can restart or route around a wedged instance.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/eventrelay/internal/logfields"
	"git.home.luguber.info/inful/eventrelay/internal/observability"
	"git.home.luguber.info/inful/eventrelay/internal/relay"
	"git.home.luguber.info/inful/eventrelay/internal/version"
)

// Status represents the overall health of the relay.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// Response represents the complete health check response.
type Response struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Version   string    `json:"version"`
	Checks    []Check   `json:"checks"`
}

// Thresholds define when the backlog tips the verdict. Pending above
// PendingDegraded means publishing is falling behind; Failed above
// FailedUnhealthy means records are exhausting their retries and an
// operator has to step in.
type Thresholds struct {
	PendingDegraded int64
	FailedUnhealthy int64
}

// DefaultThresholds returns the stock backlog limits.
func DefaultThresholds() Thresholds {
	return Thresholds{PendingDegraded: 100, FailedUnhealthy: 10}
}

// StatsSource yields the backlog counts the checker inspects.
type StatsSource interface {
	Statistics(ctx context.Context) (relay.Statistics, error)
}

// Checker evaluates relay health on demand.
type Checker struct {
	stats     StatsSource
	connected func() bool // broker connectivity probe, may be nil
	startTime time.Time

	mu         sync.RWMutex
	thresholds Thresholds
}

// NewChecker builds a checker over the given statistics source. connected
// reports broker connectivity and may be nil when no broker is wired.
func NewChecker(stats StatsSource, connected func() bool, thresholds Thresholds) *Checker {
	if thresholds.PendingDegraded <= 0 {
		thresholds.PendingDegraded = DefaultThresholds().PendingDegraded
	}
	if thresholds.FailedUnhealthy <= 0 {
		thresholds.FailedUnhealthy = DefaultThresholds().FailedUnhealthy
	}
	return &Checker{
		stats:      stats,
		connected:  connected,
		thresholds: thresholds,
		startTime:  time.Now(),
	}
}

// Perform executes all health checks and returns the overall status.
func (c *Checker) Perform(ctx context.Context) *Response {
	var checks []Check
	overall := StatusHealthy

	backlog := c.checkBacklog(ctx)
	checks = append(checks, backlog)
	overall = worse(overall, backlog.Status)

	broker := c.checkBroker()
	checks = append(checks, broker)
	overall = worse(overall, broker.Status)

	return &Response{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(c.startTime).String(),
		Version:   version.Version,
		Checks:    checks,
	}
}

// SetThresholds swaps the backlog limits, typically on config reload.
func (c *Checker) SetThresholds(t Thresholds) {
	if t.PendingDegraded <= 0 || t.FailedUnhealthy <= 0 {
		return
	}
	c.mu.Lock()
	c.thresholds = t
	c.mu.Unlock()
}

// checkBacklog inspects the outbox counters.
func (c *Checker) checkBacklog(ctx context.Context) Check {
	start := time.Now()
	check := Check{Name: "outbox_backlog", LastChecked: start}

	c.mu.RLock()
	limits := c.thresholds
	c.mu.RUnlock()

	stats, err := c.stats.Statistics(ctx)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Statistics unavailable: %v", err)
		return check
	}

	switch {
	case stats.FailedCount > limits.FailedUnhealthy:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("%d records exhausted their retries", stats.FailedCount)
	case stats.PendingCount > limits.PendingDegraded:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Publishing is falling behind, %d records pending", stats.PendingCount)
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("Backlog normal, %d pending, %d failed", stats.PendingCount, stats.FailedCount)
	}
	return check
}

// checkBroker verifies the broker connection is up.
func (c *Checker) checkBroker() Check {
	start := time.Now()
	check := Check{Name: "broker_connection", LastChecked: start, Duration: time.Since(start)}

	if c.connected == nil {
		check.Status = StatusHealthy
		check.Message = "No broker configured"
		return check
	}
	if c.connected() {
		check.Status = StatusHealthy
		check.Message = "Connected to broker"
	} else {
		check.Status = StatusUnhealthy
		check.Message = "Broker connection lost"
	}
	return check
}

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Handler serves the health verdict as JSON. Degraded still answers 200 so
// load balancers keep the instance in rotation while operators investigate.
func (c *Checker) Handler(w http.ResponseWriter, r *http.Request) {
	resp := c.Perform(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if resp.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		observability.ErrorContext(r.Context(), "Failed to encode health response", logfields.Error(err))
	}
}
