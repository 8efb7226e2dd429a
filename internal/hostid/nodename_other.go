//go:build !unix

package hostid

func nodename() string {
	return ""
}
