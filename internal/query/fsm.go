package query

import (
	"context"
	"time"

	"github.com/miekg/dns"

	"github.com/mesosphere/spartan-relay/internal/concurrencytracker"
	"github.com/mesosphere/spartan-relay/internal/dnsutil"
	"github.com/mesosphere/spartan-relay/internal/metrics"
	"github.com/mesosphere/spartan-relay/internal/router"
)

type fsmState int

const (
	stateExecute fsmState = iota
	stateWaitForFirstReply
	stateDrainLosers
	stateTerminated
)

// fsm drives one client query from raw bytes to a single reply (or silence). All of its state
// transitions happen inside run(), which is started on its own goroutine by Start and never touched
// again by the caller - the only thing the caller ever observes is a call to handle.Deliver, or none.
type fsm struct {
	handle *ReplyHandle
	raw    []byte
	router *router.Router
	sink   metrics.Sink
	cct    *concurrencytracker.Counter // Optional; tracks peak concurrent in-flight FSMs for reporting

	state fsmState
}

// Start decodes and routes raw, races it against up to router.MaxProbes upstreams, and delivers the
// winning reply - or a SERVFAIL, or nothing - via handle. It returns immediately; the FSM runs to
// completion on its own goroutine. cct, if non-nil, is incremented for the lifetime of the FSM so a
// caller can report peak query concurrency; pass nil to skip tracking.
func Start(handle *ReplyHandle, raw []byte, rt *router.Router, sink metrics.Sink, cct *concurrencytracker.Counter) {
	f := &fsm{handle: handle, raw: raw, router: rt, sink: sink, cct: cct, state: stateExecute}
	if f.cct != nil {
		f.cct.Add()
	}
	go f.run()
}

func (f *fsm) run() {
	if f.cct != nil {
		defer f.cct.Done()
	}

	req := new(dns.Msg)
	if err := req.Unpack(f.raw); err != nil {
		f.state = stateTerminated // Client-side decode failure: silent drop, no reply possible.
		return
	}

	endpoints, ignored := f.router.Route(req.Question)
	if ignored > 0 {
		f.sink.Update([]string{"spartan", "ignored_questions"}, float64(ignored), metrics.Counter)
	}

	if len(endpoints) == 0 {
		f.sink.Update([]string{"spartan", "no_upstreams_available"}, 1, metrics.Counter)
		f.handle.Deliver(dnsutil.PackServFail(req))
		f.state = stateTerminated
		return
	}

	probes := router.TakeUpstreams(endpoints)
	sendTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), consts.GlobalTimeout)
	defer cancel()

	results := make(chan probeResult, len(probes))
	for i, ep := range probes {
		if f.handle.Transport() == TCP {
			go runTCPProbe(ctx, i, ep, f.raw, results)
		} else {
			go runUDPProbe(ctx, i, ep, f.raw, results)
		}
	}

	live := make(map[int]router.UpstreamEndpoint, len(probes))
	for i, ep := range probes {
		live[i] = ep
	}

	f.state = stateWaitForFirstReply
	winner, winnerLatency := f.waitForFirstReply(ctx, live, sendTime, results)

	if winner == nil {
		f.sink.Update([]string{"spartan", "upstreams_failed"}, 1, metrics.Counter)
		for _, ep := range live {
			f.recordFailure(ep)
		}
		f.state = stateTerminated
		return
	}

	f.recordSuccess(winner.endpoint, winnerLatency)
	f.handle.Deliver(winner.reply)

	f.state = stateDrainLosers
	f.drainLosers(live, sendTime, results)
	f.state = stateTerminated
}

// waitForFirstReply blocks until a probe reply successfully decodes, the live set is exhausted, or
// the global timeout fires. Every non-winning outcome observed along the way is recorded immediately.
func (f *fsm) waitForFirstReply(ctx context.Context, live map[int]router.UpstreamEndpoint,
	sendTime time.Time, results <-chan probeResult) (*probeResult, time.Duration) {

	for len(live) > 0 {
		select {
		case res := <-results:
			ep, ok := live[res.index]
			if !ok {
				continue // Already accounted for (shouldn't happen pre-winner, but tolerate it)
			}
			delete(live, res.index)

			if res.outcome == outcomeReply {
				return &res, time.Since(sendTime)
			}
			f.recordFailure(ep)

		case <-ctx.Done():
			return nil, 0
		}
	}

	return nil, 0
}

// drainLosers lets the remaining live probes finish within a budget equal to however long the
// winner took to reply - losers get no more time than the winner did. Any probe still live when the
// drain budget elapses is recorded as a failure and abandoned; its eventual result (if any) is
// simply never read.
func (f *fsm) drainLosers(live map[int]router.UpstreamEndpoint, sendTime time.Time, results <-chan probeResult) {
	drainTimeout := time.Since(sendTime)
	if drainTimeout < 0 {
		drainTimeout = 0
	}

	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()

	for len(live) > 0 {
		select {
		case res := <-results:
			ep, ok := live[res.index]
			if !ok {
				continue
			}
			delete(live, res.index)

			if res.outcome == outcomeReply {
				f.recordSuccess(ep, time.Since(sendTime))
			} else {
				f.recordFailure(ep)
			}

		case <-deadline.C:
			for _, ep := range live {
				f.recordFailure(ep)
			}
			return
		}
	}
}

func (f *fsm) recordSuccess(ep router.UpstreamEndpoint, latency time.Duration) {
	key := ep.String()
	f.sink.Update([]string{"query_fsm", key, "successes"}, 1, metrics.Counter)
	f.sink.Update([]string{"query_fsm", key, "latency"}, float64(latency.Microseconds()), metrics.Histogram)
}

func (f *fsm) recordFailure(ep router.UpstreamEndpoint) {
	f.sink.Update([]string{"query_fsm", ep.String(), "failures"}, 1, metrics.Counter)
}
