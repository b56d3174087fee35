package batch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Resources is a snapshot of this process, logged around a batch
type Resources struct {
	Timestamp  time.Time `json:"timestamp"`
	RSSBytes   uint64    `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"`
	NumThreads int32     `json:"num_threads"`
	OpenFiles  int       `json:"open_files"`
}

// Snapshot samples the current process. Open files are best effort, some
// platforms do not report them.
func Snapshot(ctx context.Context) (Resources, error) {
	r := Resources{Timestamp: time.Now()}

	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return r, fmt.Errorf("failed to inspect process: %w", err)
	}

	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to get memory info: %w", err)
	}
	r.RSSBytes = mem.RSS

	cpuPercent, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	r.CPUPercent = cpuPercent

	if threads, err := p.NumThreadsWithContext(ctx); err == nil {
		r.NumThreads = threads
	}
	if files, err := p.OpenFilesWithContext(ctx); err == nil {
		r.OpenFiles = len(files)
	}

	return r, nil
}
