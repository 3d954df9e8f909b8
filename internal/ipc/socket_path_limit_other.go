//go:build !unix

package ipc

// ValidateSocketPath accepts any path on platforms without sun_path.
func ValidateSocketPath(path string) error {
	return nil
}
