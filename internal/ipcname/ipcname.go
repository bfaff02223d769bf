// Package ipcname derives IPC object names for the player transport, so
// any alternative byte-carrier (shared-memory ring, loopback socket) can be
// named uniquely per process and per channel without collision.
package ipcname

import (
	"fmt"
	"os"
	"strings"
)

// Name builds an IPC object name of the form
// "Tardsplayad_<pid>_<channel>_<role>", replacing every non-alphanumeric
// character with "_" so the result is safe for named pipes, shared-memory
// segments, or socket paths across platforms.
func Name(channel, role string) string {
	return NameWithPID(os.Getpid(), channel, role)
}

// NameWithPID builds the name using an explicit pid, useful in tests that
// must not depend on the running process's actual pid.
func NameWithPID(pid int, channel, role string) string {
	return sanitize(fmt.Sprintf("Tardsplayad_%d_%s_%s", pid, channel, role))
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
