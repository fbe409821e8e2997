/*
Package upstreamstats accounts for per-upstream success, failure, and weighted-average latency,
adapted from the weighted-average latency accounting used by an earlier best-server-selection algorithm (the part of
that package that measured server quality, not the part that picked a "best" server - the query FSM's
router and TakeUpstreams own selection now).

Unlike the metrics.Sink counters, which are fire-and-forget process-wide accumulators, Stats keeps a
live weighted average per endpoint so the periodic status report can show each upstream's recent
health at a glance.
*/
package upstreamstats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// WeightForLatest is the percentage weight given to the latest latency sample when folding it into
// the running weighted average.
const WeightForLatest = 67

type endpointStats struct {
	successes       int
	failures        int
	weightedAverage time.Duration
}

// Stats tracks per-upstream accounting, keyed by the upstream's endpoint string (e.g. "8.8.8.8:53").
type Stats struct {
	mu  sync.Mutex
	per map[string]*endpointStats
}

// New constructs an empty Stats.
func New() *Stats {
	return &Stats{per: make(map[string]*endpointStats)}
}

func (s *Stats) entry(key string) *endpointStats {
	e, ok := s.per[key]
	if !ok {
		e = &endpointStats{}
		s.per[key] = e
	}
	return e
}

// Success records a successful exchange with key and folds latency into its weighted average.
func (s *Stats) Success(key string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	e.successes++
	if e.weightedAverage == 0 {
		e.weightedAverage = latency
	} else {
		current := latency * WeightForLatest
		historic := e.weightedAverage * (100 - WeightForLatest)
		e.weightedAverage = (current + historic) / 100
	}
}

// Failure records a failed or timed-out exchange with key.
func (s *Stats) Failure(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(key).failures++
}

// Name implements reporter.Reporter.
func (s *Stats) Name() string {
	return "Upstream Stats"
}

// Report implements reporter.Reporter, printing one line per upstream sorted by key for stable
// output, and optionally resetting every counter afterwards.
func (s *Stats) Report(resetCounters bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.per))
	for k := range s.per {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		e := s.per[k]
		lines = append(lines, fmt.Sprintf("%s: ok=%d errs=%d avgLatency=%s",
			k, e.successes, e.failures, e.weightedAverage))
	}

	if resetCounters {
		s.per = make(map[string]*endpointStats)
	}

	return strings.Join(lines, "\n")
}
