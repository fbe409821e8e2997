package main

import (
	"fmt"
)

// Name implements reporter.Reporter.
func (t *server) Name() string {
	return "Server: (on " + t.listenAddress + "/" + t.transport + ")"
}

// Report implements reporter.Reporter.
func (t *server) Report(resetCounters bool) string {
	t.mu.Lock()
	count := t.queryCount
	if resetCounters {
		t.queryCount = 0
	}
	t.mu.Unlock()

	peak := t.cct.Peak(resetCounters)

	return fmt.Sprintf("queries=%d peak_concurrency=%d %s", count, peak, t.ct.Report(resetCounters))
}
