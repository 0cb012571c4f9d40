// Package handlers contains HTTP building blocks shared by the API server:
// health checks, caller authentication and reusable middleware.
package handlers

import (
	"cmp"
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Overall health states.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// Probe is one dependency check. A failing critical probe takes the service
// down; a failing optional one only degrades it (advisory reads may still be
// served from cache, commands answer 503).
type Probe struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	Took     string `json:"took"`
}

// Health is the aggregated report served by /health and /ready.
type Health struct {
	Status    string        `json:"status"`
	Failing   []string      `json:"failing,omitempty"`
	Probes    []ProbeResult `json:"probes"`
	Version   string        `json:"version,omitempty"`
	Uptime    string        `json:"uptime"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Healthy reports whether every critical probe passed.
func (h Health) Healthy() bool { return h.Status != HealthDown }

// HealthChecker produces a health report.
type HealthChecker interface {
	Check(ctx context.Context) Health
}

// ProbeSet runs a fixed list of probes concurrently, each under its own
// timeout.
type ProbeSet struct {
	probes  []Probe
	timeout time.Duration
	version string
	started time.Time
}

// NewProbeSet creates a checker. A non-positive timeout means 5s.
func NewProbeSet(version string, timeout time.Duration, probes ...Probe) *ProbeSet {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sorted := slices.Clone(probes)
	slices.SortFunc(sorted, func(a, b Probe) int { return cmp.Compare(a.Name, b.Name) })
	return &ProbeSet{
		probes:  sorted,
		timeout: timeout,
		version: version,
		started: time.Now(),
	}
}

// Check runs every probe and folds the results.
func (p *ProbeSet) Check(ctx context.Context) Health {
	results := make([]ProbeResult, len(p.probes))

	var g errgroup.Group
	for i, probe := range p.probes {
		g.Go(func() error {
			results[i] = p.run(ctx, probe)
			return nil
		})
	}
	_ = g.Wait()

	h := Health{
		Status:    HealthOK,
		Probes:    results,
		Version:   p.version,
		Uptime:    time.Since(p.started).Round(time.Second).String(),
		CheckedAt: time.Now().UTC(),
	}
	for _, r := range results {
		if r.Error == "" {
			continue
		}
		h.Failing = append(h.Failing, r.Name)
		switch {
		case r.Critical:
			h.Status = HealthDown
		case h.Status == HealthOK:
			h.Status = HealthDegraded
		}
	}
	return h
}

func (p *ProbeSet) run(ctx context.Context, probe Probe) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := probe.Ping(ctx)
	res := ProbeResult{
		Name:     probe.Name,
		Critical: probe.Critical,
		Took:     time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
