/*
Package health is the process resource reporter wired into the periodic status report: system CPU
and memory usage via gopsutil, the same library and the same cpu.Percent/mem.VirtualMemory calls used
for the equivalent stats endpoint elsewhere in the retrieved pack.
*/
package health

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Reporter implements reporter.Reporter by sampling system CPU and memory usage on each call.
type Reporter struct{}

// New constructs a Reporter. There is no per-process state to initialize; every call samples fresh.
func New() *Reporter {
	return &Reporter{}
}

// Name implements reporter.Reporter.
func (r *Reporter) Name() string {
	return "Host"
}

// Report implements reporter.Reporter. resetCounters has no effect: there are no accumulated
// counters here, only instantaneous samples.
func (r *Reporter) Report(resetCounters bool) string {
	cpuPercent := 0.0
	if samples, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(samples) > 0 {
		cpuPercent = samples[0]
	}

	var usedMB, totalMB, usedPercent float64
	if vmStat, err := mem.VirtualMemory(); err == nil {
		usedMB = float64(vmStat.Used) / 1024 / 1024
		totalMB = float64(vmStat.Total) / 1024 / 1024
		usedPercent = vmStat.UsedPercent
	}

	return fmt.Sprintf("cpu=%.1f%% mem=%.0f/%.0fMB (%.1f%%)", cpuPercent, usedMB, totalMB, usedPercent)
}
