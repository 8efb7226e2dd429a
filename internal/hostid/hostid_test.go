package hostid

import (
	"os"
	"testing"
)

func TestResolve_Override(t *testing.T) {
	if got := Resolve("  pi-garden  "); got != "pi-garden" {
		t.Errorf("Resolve() = %q, want pi-garden", got)
	}
}

func TestResolve_Host(t *testing.T) {
	got := Resolve("")
	if got == "" {
		t.Fatal("Resolve() returned empty id")
	}

	// The kernel node name and the OS hostname agree on every platform we
	// deploy to.
	if host, err := os.Hostname(); err == nil && host != "" && got != host {
		t.Errorf("Resolve() = %q, want hostname %q", got, host)
	}
}
