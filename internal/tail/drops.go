package tail

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	dropSummaryInterval = 5 * time.Second
	dropSampleMaxLen    = 96

	dropUnmatched    = "unmatched"
	dropUnclassified = "unclassified"
)

type dropReasonSummary struct {
	total    int
	byKey    map[string]int
	sampleBy map[string]string
}

// dropLogger aggregates discarded lines and emits one summary per reason per
// interval. It is not safe for concurrent use; the Reader serializes access.
type dropLogger struct {
	verbose  bool
	interval time.Duration
	nextEmit time.Time
	reasons  map[string]*dropReasonSummary
}

func newDropLogger(now time.Time, verbose bool, interval time.Duration) *dropLogger {
	if interval <= 0 {
		interval = dropSummaryInterval
	}
	return &dropLogger{
		verbose:  verbose,
		interval: interval,
		nextEmit: now.Add(interval),
		reasons:  make(map[string]*dropReasonSummary),
	}
}

// note records a dropped line. key groups samples within a reason, e.g. the
// unrecognized marker.
func (d *dropLogger) note(now time.Time, reason, key, rawLine string) {
	if d == nil {
		return
	}
	if key == "" {
		key = "-"
	}
	sample := sanitizeAndTruncate(rawLine, dropSampleMaxLen)
	if d.verbose {
		slog.Debug("tail: dropped line", "reason", reason, "key", key, "sample", sample)
	}

	entry := d.reasons[reason]
	if entry == nil {
		entry = &dropReasonSummary{
			byKey:    make(map[string]int),
			sampleBy: make(map[string]string),
		}
		d.reasons[reason] = entry
	}
	entry.total++
	entry.byKey[key]++
	if _, ok := entry.sampleBy[key]; !ok {
		entry.sampleBy[key] = sample
	}

	if !now.Before(d.nextEmit) {
		d.flush(now)
	}
}

// flushDue flushes only when the summary interval has elapsed.
func (d *dropLogger) flushDue(now time.Time) {
	if d == nil || now.Before(d.nextEmit) {
		return
	}
	d.flush(now)
}

func (d *dropLogger) flush(now time.Time) {
	if d == nil {
		return
	}
	if len(d.reasons) == 0 {
		d.nextEmit = now.Add(d.interval)
		return
	}

	for _, reason := range sortedKeys(d.reasons) {
		rs := d.reasons[reason]
		if rs == nil || rs.total == 0 {
			continue
		}
		slog.Info("tail: dropped_"+reason,
			"total", rs.total,
			"keys", formatKeyCounts(rs.byKey),
			"samples", formatKeySamples(rs.sampleBy),
		)
	}

	clear(d.reasons)
	d.nextEmit = now.Add(d.interval)
}

func sanitizeAndTruncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return strings.ToValidUTF8(s[:max-3], "") + "..."
}

func readDropDebugEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("POECHAT_DEBUG_DROPS"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func formatKeyCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s:%d", k, counts[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func formatKeySamples(samples map[string]string) string {
	if len(samples) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(samples))
	for _, k := range sortedKeys(samples) {
		parts = append(parts, k+":'"+samples[k]+"'")
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
