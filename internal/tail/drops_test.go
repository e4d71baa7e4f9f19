package tail

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeAndTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"collapses whitespace", "  a \t b\r\n c ", 50, "a b c"},
		{"empty", "   ", 10, ""},
		{"truncates", "abcdefghij", 8, "abcde..."},
		{"tiny max", "abcdefghij", 3, "abc"},
		{"no limit", "abcdefghij", 0, "abcdefghij"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeAndTruncate(tt.in, tt.max); got != tt.want {
				t.Fatalf("sanitizeAndTruncate(%q, %d) = %q; want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestDropLoggerFlushesOnInterval(t *testing.T) {
	start := time.Unix(0, 0)
	d := newDropLogger(start, false, time.Second)

	d.note(start, dropUnclassified, "", "local chat")
	d.note(start, dropUnclassified, "", "more local chat")
	d.note(start, dropUnmatched, "", "system line")

	entry := d.reasons[dropUnclassified]
	if entry == nil || entry.total != 2 || entry.byKey["-"] != 2 {
		t.Fatalf("unexpected unclassified summary: %+v", entry)
	}
	if entry.sampleBy["-"] != "local chat" {
		t.Fatalf("expected first sample kept, got %q", entry.sampleBy["-"])
	}

	d.note(start.Add(time.Second), dropUnmatched, "", "another")
	if len(d.reasons) != 0 {
		t.Fatalf("expected summaries cleared after flush, got %d reasons", len(d.reasons))
	}
	if !d.nextEmit.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("unexpected next emit: %s", d.nextEmit)
	}
}

func TestFormatKeyCountsSorted(t *testing.T) {
	got := formatKeyCounts(map[string]int{"!": 1, "-": 3})
	if !strings.HasPrefix(got, "{!:1") || !strings.HasSuffix(got, "-:3}") {
		t.Fatalf("unexpected format: %q", got)
	}
	if formatKeySamples(nil) != "{}" {
		t.Fatalf("expected empty braces")
	}
}
