package parser

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/you/poe-chatwatch/internal/core"
)

const clientPattern = `^(\d{4}/\d{2}/\d{2}) (\d{2}:\d{2}:\d{2}) \d+ \w+ \[INFO Client \d+\] (@To|@From|[#%$&])?\s?(?:<([^>]*)> )?([^:]+): (.*)$`

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := New(clientPattern, WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestParseChatLines(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name string
		line string
		want core.ChatEvent
	}{
		{
			name: "global",
			line: "2024/01/01 12:00:00 17290015 cffb0719 [INFO Client 1234] #Alice: gg",
			want: core.ChatEvent{
				Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				Marker:    "#",
				Username:  "Alice",
				Message:   "gg",
			},
		},
		{
			name: "guild with tag",
			line: "2024/03/05 08:09:10 1 ab [INFO Client 99] &<MyGuild> Bob: see you at the hideout",
			want: core.ChatEvent{
				Timestamp: time.Date(2024, 3, 5, 8, 9, 10, 0, time.UTC),
				Marker:    "&",
				Guild:     "MyGuild",
				Username:  "Bob",
				Message:   "see you at the hideout",
			},
		},
		{
			name: "whisper from with guild",
			line: "2024/03/05 08:09:11 1 ab [INFO Client 99] @From <GG> Carol: hi, I would like to buy",
			want: core.ChatEvent{
				Timestamp: time.Date(2024, 3, 5, 8, 9, 11, 0, time.UTC),
				Marker:    "@From",
				Guild:     "GG",
				Username:  "Carol",
				Message:   "hi, I would like to buy",
			},
		},
		{
			name: "whisper to",
			line: "2024/03/05 08:09:12 1 ab [INFO Client 99] @To Carol: sold",
			want: core.ChatEvent{
				Timestamp: time.Date(2024, 3, 5, 8, 9, 12, 0, time.UTC),
				Marker:    "@To",
				Username:  "Carol",
				Message:   "sold",
			},
		},
		{
			name: "local chat keeps empty marker",
			line: "2024/03/05 08:09:13 1 ab [INFO Client 99] Dave: anyone here?",
			want: core.ChatEvent{
				Timestamp: time.Date(2024, 3, 5, 8, 9, 13, 0, time.UTC),
				Username:  "Dave",
				Message:   "anyone here?",
			},
		},
		{
			name: "empty message and CRLF",
			line: "2024/03/05 08:09:14 1 ab [INFO Client 99] $Eve: \r\n",
			want: core.ChatEvent{
				Timestamp: time.Date(2024, 3, 5, 8, 9, 14, 0, time.UTC),
				Marker:    "$",
				Username:  "Eve",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := p.Parse(tt.line)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if !ok {
				t.Fatalf("expected match for %q", tt.line)
			}
			if !got.Timestamp.Equal(tt.want.Timestamp) {
				t.Fatalf("timestamp mismatch: want %s got %s", tt.want.Timestamp, got.Timestamp)
			}
			got.Timestamp = tt.want.Timestamp
			if got != tt.want {
				t.Fatalf("event mismatch:\nwant %+v\ngot  %+v", tt.want, got)
			}
		})
	}
}

func TestParseNoMatch(t *testing.T) {
	p := newTestParser(t)

	lines := []string{
		"",
		"2024/03/05 08:09:13 1 ab [DEBUG Client 99] Got Instance Details from login server",
		"2024/03/05 08:09:13 1 ab [INFO Client 99] : You have entered Lioneye's Watch.",
		"***** LOG FILE OPENING *****",
	}
	for _, line := range lines {
		ev, ok, err := p.Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", line, err)
		}
		if ok {
			t.Fatalf("Parse(%q) unexpectedly matched: %+v", line, ev)
		}
	}
}

func TestParseTimestampContractViolation(t *testing.T) {
	p, err := New(`^(\S+) (\S+) ([#%$&])()([^:]+): (.*)$`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ok, err := p.Parse("yesterday noon #Alice: gg")
	if ok {
		t.Fatalf("expected no event on contract violation")
	}
	if !errors.Is(err, ErrPatternContract) {
		t.Fatalf("expected ErrPatternContract, got %v", err)
	}
}

func TestParseEmptyUsernameIsNoMatch(t *testing.T) {
	p, err := New(`^(\S+) (\S+) ([#%$&])()( *): (.*)$`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, ok, err := p.Parse("2024/01/01 12:00:00 #   : hello")
	if err != nil || ok {
		t.Fatalf("expected NoMatch for blank username, got ok=%v err=%v", ok, err)
	}
}

func TestNewRejectsBadPatterns(t *testing.T) {
	cases := map[string]string{
		"empty":      "  ",
		"compile":    `(\d+`,
		"too few":    `(a)(b)(c)(d)(e)`,
		"no capture": `.*`,
	}
	for name, pattern := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(pattern); !errors.Is(err, ErrInvalidPattern) {
				t.Fatalf("expected ErrInvalidPattern, got %v", err)
			}
		})
	}
}

func TestParseConcurrentUse(t *testing.T) {
	p := newTestParser(t)
	line := "2024/01/01 12:00:00 1 ab [INFO Client 1] %Frank: ready"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if ev, ok, err := p.Parse(line); err != nil || !ok || ev.Username != "Frank" {
					t.Errorf("concurrent parse failed: %+v %v %v", ev, ok, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
