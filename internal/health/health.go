// Package health probes every model backend concurrently and rolls the
// results into an overall service status.
package health

import (
	"context"
	"sync"
	"time"
)

// Prober is one backend that can report liveness. All llm clients satisfy it.
type Prober interface {
	Label() string
	Health(ctx context.Context) bool
}

// Report is the JSON shape of GET /api/health.
type Report struct {
	Status    string            `json:"status"`
	Models    map[string]string `json:"models"`
	Timestamp string            `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Check probes all backends in parallel and classifies the rollup.
//
// Expectations:
//   - All backends online → healthy
//   - At least half online → degraded
//   - Fewer than half → unhealthy
func Check(ctx context.Context, probers []Prober) Report {
	type probe struct {
		label  string
		online bool
	}
	results := make([]probe, len(probers))

	var wg sync.WaitGroup
	for i, p := range probers {
		wg.Add(1)
		go func(i int, p Prober) {
			defer wg.Done()
			results[i] = probe{label: p.Label(), online: p.Health(ctx)}
		}(i, p)
	}
	wg.Wait()

	models := make(map[string]string, len(results))
	online := 0
	for _, r := range results {
		if r.online {
			models[r.label] = "online"
			online++
		} else {
			models[r.label] = "offline"
		}
	}

	status := StatusUnhealthy
	switch {
	case online == len(results):
		status = StatusHealthy
	case float64(online) >= float64(len(results))/2:
		status = StatusDegraded
	}

	return Report{
		Status:    status,
		Models:    models,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Labels returns the probe labels in probe order, for GET /api/models.
func Labels(probers []Prober) []string {
	out := make([]string, 0, len(probers))
	for _, p := range probers {
		out = append(out, p.Label())
	}
	return out
}
