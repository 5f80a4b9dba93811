package memory

import (
	"strings"
	"testing"
)

func TestSplitCustomerIDs(t *testing.T) {
	if got := splitCustomerIDs(""); got != nil {
		t.Fatalf("splitCustomerIDs(\"\") = %v, want nil", got)
	}
	got := splitCustomerIDs("93486,20571")
	if len(got) != 2 || got[0] != "93486" || got[1] != "20571" {
		t.Fatalf("splitCustomerIDs() = %v", got)
	}
}

func TestTruncateMessage(t *testing.T) {
	if got := truncateMessage("short", 100); got != "short" {
		t.Fatalf("truncateMessage(short) = %q", got)
	}
	long := strings.Repeat("a", 150)
	got := truncateMessage(long, 100)
	if len(got) != 103 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncateMessage(long) = %d chars, suffix %q", len(got), got[len(got)-3:])
	}
}
