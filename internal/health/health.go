// Package health reports process resource usage for the /api/health
// endpoint.
package health

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Process describes the running server process.
type Process struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

// Host describes machine-wide memory pressure.
type Host struct {
	MemoryTotal       uint64  `json:"memoryTotal"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
}

// Checker samples resource usage for the current process.
type Checker struct {
	pid     int32
	started time.Time
	proc    *process.Process
}

// NewChecker creates a Checker for the calling process.
func NewChecker() (*Checker, error) {
	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("inspecting process %d: %w", pid, err)
	}
	return &Checker{pid: pid, started: time.Now(), proc: proc}, nil
}

// Uptime returns the time since the checker was created.
func (c *Checker) Uptime() time.Duration {
	return time.Since(c.started)
}

// Process samples the current process. CPU percent is averaged over the
// process lifetime.
func (c *Checker) Process(ctx context.Context) (Process, error) {
	p := Process{PID: c.pid, Goroutines: runtime.NumGoroutine()}

	memInfo, err := c.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return p, fmt.Errorf("reading memory info: %w", err)
	}
	p.RSSBytes = memInfo.RSS

	if cpu, err := c.proc.CPUPercentWithContext(ctx); err == nil {
		p.CPUPercent = cpu
	}
	if threads, err := c.proc.NumThreadsWithContext(ctx); err == nil {
		p.Threads = threads
	}
	return p, nil
}

// Host samples machine-wide memory usage.
func (c *Checker) Host(ctx context.Context) (Host, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Host{}, fmt.Errorf("reading virtual memory: %w", err)
	}
	return Host{MemoryTotal: vm.Total, MemoryUsedPercent: vm.UsedPercent}, nil
}
