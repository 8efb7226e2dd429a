// Package hostid resolves the device identifier attached to every detection.
package hostid

import (
	"os"
	"strings"
)

// Unknown is returned when no identity can be determined.
const Unknown = "unknown"

// Resolve returns override when it is set, otherwise the kernel node name,
// otherwise the OS hostname.
func Resolve(override string) string {
	if id := strings.TrimSpace(override); id != "" {
		return id
	}
	if name := nodename(); name != "" {
		return name
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return Unknown
}
