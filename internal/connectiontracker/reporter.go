package connectiontracker

import (
	"fmt"
)

// Name implements the reporter interface
func (t *Tracker) Name() string {
	return "Conn Track: " + t.name
}

// Report implements the reporter interface
func (t *Tracker) Report(resetCounters bool) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	errs := 0
	for _, v := range t.errors {
		errs += v
	}
	report := fmt.Sprintf("clients=%d pkClients=%d pkQueries=%d errs=%d (%s)",
		len(t.clients), t.peakClients, t.peakQueries, errs, formatCounters("%d", "/", t.errors[:]))
	if resetCounters {
		t.trackerStats = trackerStats{}
	}

	return report
}

// formatCounters returns a nice %d/%d/%d format from an array of ints. This is less error-prone
// than hard-coding one big ol' Sprintf string but obviously slower which is irrelevant here.
func formatCounters(vfmt string, delim string, vals []int) string {
	res := ""
	for ix, v := range vals {
		if ix > 0 {
			res += delim
		}
		res += fmt.Sprintf(vfmt, v)
	}

	return res
}
