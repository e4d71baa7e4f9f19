// Package tail incrementally reads complete lines appended to a log file and
// forwards parsed chat events to a sink.
package tail

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/you/poe-chatwatch/internal/core"
	"github.com/you/poe-chatwatch/internal/metrics"
)

const readBufferSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type LineParser interface {
	Parse(line string) (core.ChatEvent, bool, error)
}

type EventSink interface {
	Add(core.ChatEvent) (core.Category, bool)
}

// Reader owns the byte cursor into one file. The cursor always sits just
// after the last newline consumed, so a trailing partial line is re-read on
// the next call instead of being parsed early.
type Reader struct {
	path    string
	parser  LineParser
	sink    EventSink
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	offset atomic.Int64
	info   os.FileInfo
	drops  *dropLogger
}

type Option func(*Reader)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// WithDropSummaryInterval changes how often dropped-line summaries are logged.
func WithDropSummaryInterval(d time.Duration) Option {
	return func(r *Reader) { r.drops = newDropLogger(r.now(), r.drops.verbose, d) }
}

func New(path string, p LineParser, sink EventSink, opts ...Option) *Reader {
	r := &Reader{
		path:   path,
		parser: p,
		sink:   sink,
		now:    time.Now,
	}
	r.drops = newDropLogger(r.now(), readDropDebugEnv(), dropSummaryInterval)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Path() string { return r.path }

// Offset returns the current cursor.
func (r *Reader) Offset() int64 { return r.offset.Load() }

// ReadExisting reads the whole file from the beginning.
func (r *Reader) ReadExisting() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setOffset(0)
	r.info = nil
	return r.readLocked()
}

// ReadNew reads everything appended since the previous call. It is a no-op
// when the file has not grown. If the file shrank below the cursor, was
// replaced by a different file, or was rewritten in place so the cursor no
// longer follows a newline, the cursor is reset and the file is read from the
// start.
func (r *Reader) ReadNew() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

// FlushDrops logs any pending dropped-line summaries immediately.
func (r *Reader) FlushDrops() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drops.flush(r.now())
}

func (r *Reader) readLocked() error {
	defer func() { r.drops.flushDue(r.now()) }()

	f, err := os.Open(r.path)
	if err != nil {
		r.metrics.IncReadErrors()
		return errors.Wrapf(err, "tail: open %s", r.path)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		r.metrics.IncReadErrors()
		return errors.Wrapf(err, "tail: stat %s", r.path)
	}

	size := st.Size()
	cursor := r.offset.Load()
	switch {
	case r.info != nil && !os.SameFile(r.info, st):
		slog.Info("tail: file replaced; rereading from start", "path", r.path, "cursor", cursor, "size", size)
		r.metrics.IncTruncations()
		cursor = 0
	case size < cursor:
		slog.Info("tail: file truncated; rereading from start", "path", r.path, "cursor", cursor, "size", size)
		r.metrics.IncTruncations()
		cursor = 0
	case cursor > 0 && !followsNewline(f, cursor):
		slog.Info("tail: file rewritten in place; rereading from start", "path", r.path, "cursor", cursor, "size", size)
		r.metrics.IncTruncations()
		cursor = 0
	}
	r.info = st
	r.setOffset(cursor)

	if size == cursor {
		return nil
	}

	if _, err := f.Seek(cursor, io.SeekStart); err != nil {
		r.metrics.IncReadErrors()
		return errors.Wrapf(err, "tail: seek %s to %d", r.path, cursor)
	}

	br := bufio.NewReaderSize(io.LimitReader(f, size-cursor), readBufferSize)
	pos := cursor
	lines := 0
	defer func() {
		r.metrics.AddLinesRead(lines)
		r.setOffset(pos)
	}()

	for {
		raw, err := br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// anything left in raw has no newline yet
				return nil
			}
			r.metrics.IncReadErrors()
			return errors.Wrapf(err, "tail: read %s at %d", r.path, pos)
		}

		line := decodeLine(raw, pos == 0)
		if perr := r.handleLine(line); perr != nil {
			return perr
		}
		pos += int64(len(raw))
		lines++
	}
}

func (r *Reader) handleLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	ev, ok, err := r.parser.Parse(line)
	if err != nil {
		return err
	}
	if !ok {
		r.metrics.IncDropped(dropUnmatched)
		r.drops.note(r.now(), dropUnmatched, "", line)
		return nil
	}
	r.metrics.IncParsed()

	if _, stored := r.sink.Add(ev); !stored {
		r.drops.note(r.now(), dropUnclassified, ev.Marker, line)
	}
	return nil
}

// followsNewline reports whether the byte just before off is a newline, which
// holds for every cursor this reader produces while the file is only appended.
func followsNewline(f *os.File, off int64) bool {
	var b [1]byte
	if _, err := f.ReadAt(b[:], off-1); err != nil {
		// unknown; the read that follows reports the I/O error
		return true
	}
	return b[0] == '\n'
}

func (r *Reader) setOffset(off int64) {
	r.offset.Store(off)
	r.metrics.SetCursor(off)
}

func decodeLine(raw []byte, atStart bool) string {
	if atStart {
		raw = bytes.TrimPrefix(raw, utf8BOM)
	}
	raw = bytes.TrimSuffix(raw, []byte{'\n'})
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}
