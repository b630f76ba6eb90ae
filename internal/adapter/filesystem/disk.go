package filesystem

import "github.com/vertextoedge/halftunes/internal/port"

func newDiskUsage(total, free uint64) *port.DiskUsage {
	if free > total {
		free = total
	}
	used := total - free

	usage := &port.DiskUsage{Total: total, Used: used, Free: free}
	if total > 0 {
		usage.UsedPct = float64(used) / float64(total) * 100
	}
	return usage
}
