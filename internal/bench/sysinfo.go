package bench

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// MemorySampler reports combined resident set size in gigabytes for a set
// of process ids.
type MemorySampler func(pids ...int32) (float64, error)

// RSSGigabytes sums the RSS of the given processes. Pids that cannot be
// inspected (already exited, zero) are skipped.
func RSSGigabytes(pids ...int32) (float64, error) {
	var total uint64
	var firstErr error
	sampled := false

	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		p, err := process.NewProcess(pid)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		mi, err := p.MemoryInfo()
		if err != nil || mi == nil {
			if firstErr == nil && err != nil {
				firstErr = err
			}
			continue
		}
		total += mi.RSS
		sampled = true
	}

	if !sampled {
		if firstErr != nil {
			return 0, firstErr
		}
		return 0, fmt.Errorf("no process could be sampled")
	}
	return float64(total) / (1 << 30), nil
}
