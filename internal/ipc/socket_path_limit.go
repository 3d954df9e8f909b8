//go:build unix

package ipc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// socketPathLimit is sun_path's size on this platform (104 on darwin, 108
// on linux).
const socketPathLimit = len(unix.RawSockaddrUnix{}.Path)

// ValidateSocketPath rejects paths that bind(2) would truncate.
func ValidateSocketPath(path string) error {
	if path == "" {
		return nil
	}
	limit := socketPathLimit - 1
	if len(path) > limit {
		return fmt.Errorf("control socket path exceeds %d bytes: %s", limit, path)
	}
	return nil
}
