/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Sample is the final state of one session, as pushed to a Pushgateway.
type Sample struct {
	Verdict           string
	DurationMs        int64
	Turns             int
	CostUSD           float64
	PermissionDenials int
	DecodeErrors      int
	ToolCalls         map[string]int
}

// Pusher publishes per-run gauges to a Prometheus Pushgateway. CI jobs
// finish before a scraper would see them, so they push instead.
type Pusher struct {
	url      string
	job      string
	registry *prometheus.Registry

	outcome      *prometheus.GaugeVec
	duration     prometheus.Gauge
	turns        prometheus.Gauge
	cost         prometheus.Gauge
	denials      prometheus.Gauge
	decodeErrors prometheus.Gauge
	toolCalls    *prometheus.GaugeVec
}

// NewPusher returns a Pusher for the gateway at url.
func NewPusher(url, job string) *Pusher {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Pusher{
		url:      url,
		job:      job,
		registry: reg,
		outcome: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "review_session_outcome",
			Help: "1 for the verdict of the last review session",
		}, []string{"verdict"}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "review_session_duration_seconds",
			Help: "Runtime-reported duration of the last review session",
		}),
		turns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "review_session_turns",
			Help: "Turns used by the last review session",
		}),
		cost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "review_session_cost_usd",
			Help: "Model cost of the last review session",
		}),
		denials: factory.NewGauge(prometheus.GaugeOpts{
			Name: "review_session_permission_denials",
			Help: "Tool calls the runtime refused in the last review session",
		}),
		decodeErrors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "review_session_decode_errors",
			Help: "Events skipped in the last review session",
		}),
		toolCalls: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "review_session_tool_calls",
			Help: "Tool invocations in the last review session",
		}, []string{"tool"}),
	}
}

// Record sets the gauges from s.
func (p *Pusher) Record(s Sample) {
	p.outcome.Reset()
	p.outcome.WithLabelValues(s.Verdict).Set(1)
	p.duration.Set(float64(s.DurationMs) / 1000)
	p.turns.Set(float64(s.Turns))
	p.cost.Set(s.CostUSD)
	p.denials.Set(float64(s.PermissionDenials))
	p.decodeErrors.Set(float64(s.DecodeErrors))
	p.toolCalls.Reset()
	for tool, n := range s.ToolCalls {
		p.toolCalls.WithLabelValues(tool).Set(float64(n))
	}
}

// Push replaces the job's metrics on the gateway. grouping labels
// distinguish repositories sharing one job name.
func (p *Pusher) Push(ctx context.Context, grouping map[string]string) error {
	pusher := push.New(p.url, p.job).Gatherer(p.registry)
	for k, v := range grouping {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", p.url, err)
	}
	return nil
}

// Gatherer exposes the registry, mainly for tests.
func (p *Pusher) Gatherer() prometheus.Gatherer {
	return p.registry
}
