package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/you/poe-chatwatch/internal/core"
)

type snapshotter interface {
	Snapshot(core.Category) []core.ChatEvent
}

// printer serializes terminal output from the reader goroutine and the dump
// signal handler.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	filter map[core.Category]bool
}

func newPrinter(w io.Writer) *printer { return &printer{w: w} }

// only restricts event output to a comma-separated list of category names.
// An empty list prints everything.
func (p *printer) only(list string) error {
	var filter map[core.Category]bool
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c, ok := core.ParseCategory(name)
		if !ok {
			return fmt.Errorf("unknown category %q", strings.TrimSpace(name))
		}
		if filter == nil {
			filter = make(map[core.Category]bool)
		}
		filter[c] = true
	}
	p.mu.Lock()
	p.filter = filter
	p.mu.Unlock()
	return nil
}

func (p *printer) event(c core.Category, ev core.ChatEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filter != nil && !p.filter[c] {
		return
	}
	fmt.Fprintln(p.w, formatRow(c, ev))
}

// dump writes every category's queue as an aligned table.
func (p *printer) dump(src snapshotter) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for _, c := range core.Categories() {
		events := src.Snapshot(c)
		fmt.Fprintf(tw, "== %s (%d)\n", c, len(events))
		for _, ev := range events {
			fmt.Fprintln(tw, formatRow(c, ev))
		}
	}
	return tw.Flush()
}

func formatRow(c core.Category, ev core.ChatEvent) string {
	guild := ev.Guild
	if guild != "" {
		guild = "<" + guild + ">"
	}
	return strings.Join([]string{
		ev.Timestamp.Format(core.TimestampLayout),
		c.String(),
		ev.Marker,
		guild,
		ev.Username,
		sanitizeCell(ev.Message),
	}, "\t")
}

func sanitizeCell(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, s)
}
