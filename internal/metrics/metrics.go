/*
Package metrics defines the Sink capability the query FSM uses to record outcomes, and a
concrete implementation backed by armon/go-metrics, fanned out to both an in-memory sink (used by the
reporter.Reporter printable output) and a Prometheus sink for scraping.

The core only ever depends on the Sink interface, per the core/collaborator boundary: the
concrete metrics storage is an external collaborator, not something the query FSM or router own.
*/
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gometrics "github.com/armon/go-metrics"
	gmprometheus "github.com/armon/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Kind distinguishes a running count from a distribution of observed values.
type Kind int

const (
	Counter Kind = iota
	Histogram
)

// Sink is the core's sole view of metrics storage: update(key-path, value, kind).
type Sink interface {
	Update(keyPath []string, value float64, kind Kind)
}

// GoMetricsSink implements Sink on top of github.com/armon/go-metrics, fanned out to an in-memory
// sink (for periodic reporter.Reporter output) and, optionally, a Prometheus sink for scraping.
type GoMetricsSink struct {
	metrics    *gometrics.Metrics
	inmem      *gometrics.InmemSink
	httpServer *http.Server // Non-nil only when constructed with a Prometheus sink
}

// NewGoMetricsSink builds a GoMetricsSink for serviceName. When withPrometheus is true, samples are
// also exported via a Prometheus sink, and an HTTP server is prepared to expose them on addr at
// "/metrics" - call Serve to actually start listening.
func NewGoMetricsSink(serviceName string, withPrometheus bool, addr string) (*GoMetricsSink, error) {
	inmem := gometrics.NewInmemSink(10*time.Second, time.Minute)

	fanout := gometrics.FanoutSink{inmem}

	var httpServer *http.Server
	if withPrometheus {
		promSink, err := gmprometheus.NewPrometheusSink()
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, promSink)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpServer = &http.Server{Addr: addr, Handler: mux}
	}

	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false

	m, err := gometrics.New(cfg, fanout)
	if err != nil {
		return nil, err
	}

	return &GoMetricsSink{metrics: m, inmem: inmem, httpServer: httpServer}, nil
}

// Serve starts the "/metrics" scrape endpoint in the background and sends any listener error to
// errorChan. It is a no-op if the sink was built without a Prometheus sink.
func (g *GoMetricsSink) Serve(errorChan chan<- error) {
	if g.httpServer == nil {
		return
	}
	go func() {
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errorChan <- err
		}
	}()
}

// Shutdown gracefully stops the "/metrics" HTTP server, if one was started. It is a no-op if the
// sink was built without a Prometheus sink.
func (g *GoMetricsSink) Shutdown(ctx context.Context) error {
	if g.httpServer == nil {
		return nil
	}
	return g.httpServer.Shutdown(ctx)
}

// Update implements Sink.
func (g *GoMetricsSink) Update(keyPath []string, value float64, kind Kind) {
	switch kind {
	case Counter:
		g.metrics.IncrCounter(keyPath, float32(value))
	case Histogram:
		g.metrics.AddSample(keyPath, float32(value))
	}
}

// Name implements reporter.Reporter.
func (g *GoMetricsSink) Name() string {
	return "Metrics"
}

// Report implements reporter.Reporter, rendering the most recent in-memory interval as one line per
// key. resetCounters has no effect: the in-memory sink already rolls off old intervals on its own
// schedule and armon/go-metrics offers no external reset hook.
func (g *GoMetricsSink) Report(resetCounters bool) string {
	data := g.inmem.Data()
	if len(data) == 0 {
		return "no data yet"
	}

	interval := data[len(data)-1] // Current, still-open interval
	interval.RLock()
	defer interval.RUnlock()

	var lines []string
	for name, v := range interval.Counters {
		lines = append(lines, fmt.Sprintf("%s=%.0f", name, v.AggregateSample.Sum))
	}
	for name, v := range interval.Samples {
		lines = append(lines, fmt.Sprintf("%s(mean)=%.1f", name, v.AggregateSample.Mean()))
	}
	if len(lines) == 0 {
		return "no data yet"
	}

	return strings.Join(lines, "\n")
}
