// Package sysmon samples system-wide CPU and memory usage. The driver logs a
// sample after every day and the dashboard shows the latest one.
package sysmon

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/agbru/dayrun/internal/logging"
)

// Stats holds a single snapshot of system-wide resource usage.
type Stats struct {
	CPUPercent float64 // 0.0 .. 100.0
	MemPercent float64 // 0.0 .. 100.0
	Load1      float64 // 1-minute load average, 0 where unsupported
}

// Sample collects a single snapshot. CPU uses interval=0, so the first call
// of a process reports usage since boot. Fields that cannot be read are zero.
func Sample() Stats {
	var s Stats
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		s.CPUPercent = pcts[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil && vmem != nil {
		s.MemPercent = vmem.UsedPercent
	}
	if avg, err := load.Avg(); err == nil && avg != nil {
		s.Load1 = avg.Load1
	}
	return s
}

// Fields returns the snapshot as structured log fields.
func (s Stats) Fields() []logging.Field {
	return []logging.Field{
		logging.Float64("cpu_pct", s.CPUPercent),
		logging.Float64("mem_pct", s.MemPercent),
		logging.Float64("load1", s.Load1),
	}
}
