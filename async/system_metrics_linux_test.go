//go:build linux

package async

import "testing"

func TestGetMemoryStats(t *testing.T) {
	total, available, err := getMemoryStats()
	if err != nil {
		t.Fatalf("getMemoryStats failed: %v", err)
	}
	if total == 0 {
		t.Error("expected non-zero total memory")
	}
	if available > total {
		t.Errorf("available memory %d exceeds total %d", available, total)
	}
}
