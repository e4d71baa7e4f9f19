package core

import (
	"strings"
	"time"
)

// TimestampLayout is the date/time layout shared by the client log and the
// terminal renderer.
const TimestampLayout = "2006/01/02 15:04:05"

// ChatEvent is one parsed chat line. It is treated as an immutable value.
type ChatEvent struct {
	Timestamp time.Time
	Marker    string // channel marker as written in the log ("#", "%", "@To", ...)
	Guild     string // optional guild tag, empty when absent
	Username  string
	Message   string
}

// Category identifies one of the fixed chat queues.
type Category int

const (
	Global Category = iota
	Party
	Whisper
	Trade
	Guild

	numCategories
)

// NumCategories is the size of the closed category set.
const NumCategories = int(numCategories)

var categoryNames = [NumCategories]string{
	Global:  "global",
	Party:   "party",
	Whisper: "whisper",
	Trade:   "trade",
	Guild:   "guild",
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{Global, Party, Whisper, Trade, Guild}
}

func (c Category) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return categoryNames[c]
}

// Valid reports whether c is one of the five known categories.
func (c Category) Valid() bool {
	return c >= 0 && c < numCategories
}

// ParseCategory resolves a category name (case-insensitive). "global_" is
// accepted as an alias of "global".
func ParseCategory(name string) (Category, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "global_" {
		name = "global"
	}
	for i, n := range categoryNames {
		if n == name {
			return Category(i), true
		}
	}
	return 0, false
}

// Classify maps a channel marker to its category. Markers outside the known
// set (local area chat, system lines) report false.
func Classify(marker string) (Category, bool) {
	switch marker {
	case "#":
		return Global, true
	case "%":
		return Party, true
	case "@To", "@From":
		return Whisper, true
	case "$":
		return Trade, true
	case "&":
		return Guild, true
	default:
		return 0, false
	}
}
