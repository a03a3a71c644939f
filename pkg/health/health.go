// Package health probes the backing services a run depends on (model
// cache, result databases, broker) and serves the result over HTTP next to
// the metrics endpoint. Optional services degrade the report instead of
// failing it.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Probe returns nil when the dependency is reachable.
type Probe func(ctx context.Context) error

type ComponentHealth struct {
	Status   Status `json:"status"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	RunID      string                     `json:"run_id,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type probe struct {
	fn       Probe
	required bool
}

// Checker runs the registered probes concurrently.
type Checker struct {
	runID  string
	mu     sync.RWMutex
	probes map[string]probe
	logger *slog.Logger
}

func NewChecker(runID string) *Checker {
	return &Checker{
		runID:  runID,
		probes: make(map[string]probe),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a probe. A failing required probe marks the report down; a
// failing optional one marks it degraded.
func (c *Checker) Register(name string, required bool, fn Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe{fn: fn, required: required}
}

// Run executes every probe and folds the results into one Report.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		RunID:      c.runID,
		Components: make(map[string]ComponentHealth, len(probes)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, p := range probes {
		name, p := name, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := p.fn(ctx)
			comp := ComponentHealth{
				Status:   StatusUp,
				Required: p.required,
				Latency:  time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				comp.Status = StatusDegraded
				if p.required {
					comp.Status = StatusDown
				}
				comp.Message = err.Error()
			}
			mu.Lock()
			report.Components[name] = comp
			mu.Unlock()
		}()
	}
	wg.Wait()

	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch report.Components[name].Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
	}
	if report.Status != StatusUp {
		c.logger.Warn("dependency check failed", "status", report.Status)
	}
	return report
}

// Handler serves /live (always 200) and /ready (200 unless a required
// probe fails).
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive", "run_id": c.runID})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
