//go:build windows

package filesystem

import (
	"fmt"

	"github.com/vertextoedge/halftunes/internal/port"
	"golang.org/x/sys/windows"
)

// GetDiskUsage reports the volume holding the storage root
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	dir, err := windows.UTF16PtrFromString(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("invalid storage path %s: %w", m.rootDir, err)
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &available, &total, &free); err != nil {
		return nil, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", m.rootDir, err)
	}
	return newDiskUsage(total, available), nil
}
