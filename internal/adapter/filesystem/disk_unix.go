//go:build !windows

package filesystem

import (
	"fmt"

	"github.com/vertextoedge/halftunes/internal/port"
	"golang.org/x/sys/unix"
)

// GetDiskUsage reports the filesystem holding the storage root. Free
// counts only the space available to unprivileged users.
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(m.rootDir, &st); err != nil {
		return nil, fmt.Errorf("statfs %s: %w", m.rootDir, err)
	}

	blockSize := uint64(st.Bsize)
	return newDiskUsage(uint64(st.Blocks)*blockSize, uint64(st.Bavail)*blockSize), nil
}
