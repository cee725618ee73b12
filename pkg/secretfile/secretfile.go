// Package secretfile loads shared-secret key material from disk the way
// §6's external-interfaces contract requires: "key loaded once from a
// mode-600 file", not passed as a plaintext CLI argument or environment
// variable where it would be visible via ps or shell history.
package secretfile

import (
	"bytes"
	"fmt"
	"os"
)

// Load reads the key at path after rejecting a file readable or writable
// by anyone but its owner, and returns its bytes with all trailing CR
// and LF characters trimmed.
func Load(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("secretfile: stat %s: %w", path, err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("secretfile: %s must be mode 0600, got %04o", path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secretfile: read %s: %w", path, err)
	}
	return bytes.TrimRight(data, "\r\n"), nil
}
