// Package parser turns raw client log lines into chat events using a single
// configured extraction pattern.
//
// The pattern must expose six capture groups in this order: date, time,
// channel marker, guild tag (may be empty), username, message.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/you/poe-chatwatch/internal/core"
)

const requiredGroups = 6

var (
	// ErrInvalidPattern reports a pattern that cannot be used at all.
	ErrInvalidPattern = errors.New("parser: invalid extraction pattern")
	// ErrPatternContract reports a pattern that matched a line but captured a
	// date/time that does not parse. Every later line would be corrupted the
	// same way, so callers treat it as fatal.
	ErrPatternContract = errors.New("parser: pattern captured an unparseable timestamp")
)

// Parser applies the extraction pattern. It is safe for concurrent use.
type Parser struct {
	re  *regexp.Regexp
	loc *time.Location
}

type Option func(*Parser)

// WithLocation sets the time zone used to interpret captured timestamps.
// The default is the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// New compiles pattern and checks that it exposes the six groups.
func New(pattern string, opts ...Option) (*Parser, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, errors.Wrap(ErrInvalidPattern, "pattern is empty")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPattern, "compile: %v", err)
	}
	if n := re.NumSubexp(); n < requiredGroups {
		return nil, errors.Wrapf(ErrInvalidPattern, "pattern has %d capture groups, need %d", n, requiredGroups)
	}

	p := &Parser{re: re, loc: time.Local}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Pattern returns the source text of the compiled pattern.
func (p *Parser) Pattern() string { return p.re.String() }

// Parse extracts a chat event from line. ok is false when the line is not a
// chat line. A non-nil error wraps ErrPatternContract.
func (p *Parser) Parse(line string) (ev core.ChatEvent, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return core.ChatEvent{}, false, nil
	}

	username := strings.TrimSpace(m[5])
	if username == "" {
		return core.ChatEvent{}, false, nil
	}

	stamp := strings.TrimSpace(m[1]) + " " + strings.TrimSpace(m[2])
	ts, perr := time.ParseInLocation(core.TimestampLayout, stamp, p.loc)
	if perr != nil {
		return core.ChatEvent{}, false, errors.Wrapf(ErrPatternContract, "timestamp %q: %v", stamp, perr)
	}

	return core.ChatEvent{
		Timestamp: ts,
		Marker:    strings.TrimSpace(m[3]),
		Guild:     strings.TrimSpace(m[4]),
		Username:  username,
		Message:   m[6],
	}, true, nil
}
