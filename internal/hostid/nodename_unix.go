//go:build unix

package hostid

import "golang.org/x/sys/unix"

// nodename mirrors `uname -n`.
func nodename() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Nodename[:])
}
