package parser

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

const (
	// DefaultArenaSize is the initial read buffer of a Decoder.
	DefaultArenaSize = 8 * 1024
	// MaxInvalidRecords is the number of invalid records tolerated per file.
	MaxInvalidRecords = 100

	maxStringLength = 1 << 20
	maxGroupDepth   = 1024
)

// Minimum body size per record type, excluding the discriminant byte.
var minRecordSize = map[RecordType]int{
	RunType:     16,
	UserType:    9,
	RequestType: 14,
	GroupType:   17,
	ErrorType:   8,
}

type decodeStatus int

const (
	decoded decodeStatus = iota
	incomplete
	// skipped records were fully read but carry a bad value
	skipped
	invalid
)

// errShort is the sticky cursor error for a record running past the
// buffered bytes. It never leaves the decoder.
var errShort = errors.New("short buffer")

// Decoder turns an arbitrarily chunked binary log into records. The stream
// must start with a RUN record. Records split across reads are reassembled.
// A record with a bad value but a readable layout is skipped on its own; a
// record whose length cannot be trusted discards the rest of the buffered
// bytes and decoding resumes after the next read.
type Decoder struct {
	r        io.Reader
	logger   zerolog.Logger
	observer Observer

	buf   []byte
	start int
	end   int
	base  int64 // stream offset of buf[0]
	eof   bool

	cache    map[int32]string
	run      *RunRecord
	counters Counters
}

// NewDecoder creates a decoder reading from r. arenaSize <= 0 selects
// DefaultArenaSize.
func NewDecoder(r io.Reader, arenaSize int, observer Observer, logger zerolog.Logger) *Decoder {
	if arenaSize <= 0 {
		arenaSize = DefaultArenaSize
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Decoder{
		r:        r,
		logger:   logger,
		observer: observer,
		buf:      make([]byte, arenaSize),
		cache:    make(map[int32]string),
	}
}

// Counters returns the records decoded so far.
func (d *Decoder) Counters() Counters {
	return d.counters
}

// Run returns the RUN record once decoded.
func (d *Decoder) Run() *RunRecord {
	return d.run
}

// Next returns the next record, or io.EOF once the input ends on a record
// boundary.
func (d *Decoder) Next(ctx context.Context) (Record, error) {
	for {
		if d.start < d.end {
			offset := d.base + int64(d.start)
			rec, n, status, err := d.tryDecode(d.buf[d.start:d.end])
			switch status {
			case decoded:
				d.start += n
				d.counters.add(rec.Type())
				d.observer.RecordDecoded(rec.Type())
				return rec, nil
			case skipped, invalid:
				recErr := &RecordError{Type: RecordType(d.buf[d.start]), Offset: offset, Err: err}
				if d.run == nil {
					return nil, recErr
				}
				discard := d.end - d.start
				if status == skipped {
					discard = n
				}
				d.counters.Invalid++
				d.observer.RecordInvalid()
				d.logger.Warn().Err(recErr).
					Int("discarded", discard).
					Int64("invalid", d.counters.Invalid).
					Msg("skipping invalid record")
				if d.counters.Invalid > MaxInvalidRecords {
					return nil, fmt.Errorf("%w: %d at offset %d", ErrTooManyInvalidRecords, d.counters.Invalid, offset)
				}
				d.start += discard
				continue
			}
		}

		if d.eof {
			if d.start < d.end {
				return nil, &RecordError{
					Type:   RecordType(d.buf[d.start]),
					Offset: d.base + int64(d.start),
					Err:    ErrTruncatedStream,
				}
			}
			if d.run == nil {
				return nil, fmt.Errorf("%w: no RUN record", ErrTruncatedStream)
			}
			return nil, io.EOF
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.fill(); err != nil {
			return nil, err
		}
	}
}

// fill compacts the unread bytes to the front of the arena and performs one
// read. The arena only grows when a single pending record fills it.
func (d *Decoder) fill() error {
	if d.start > 0 {
		copy(d.buf, d.buf[d.start:d.end])
		d.base += int64(d.start)
		d.end -= d.start
		d.start = 0
	}
	if d.end == len(d.buf) {
		grown := make([]byte, 2*len(d.buf))
		copy(grown, d.buf[:d.end])
		d.buf = grown
		d.logger.Debug().Int("size", len(d.buf)).Msg("grew decoder arena")
	}

	n, err := d.r.Read(d.buf[d.end:])
	d.end += n
	if errors.Is(err, io.EOF) {
		d.eof = true
		return nil
	}
	return err
}

// tryDecode decodes one record from b. The cache is only updated for
// decoded records, so an incomplete record can be retried after a refill.
func (d *Decoder) tryDecode(b []byte) (Record, int, decodeStatus, error) {
	t := RecordType(b[0])
	size, known := minRecordSize[t]
	if !known {
		return nil, 0, invalid, fmt.Errorf("%w: unknown record type %d", ErrMalformedRecord, b[0])
	}
	if d.run == nil && t != RunType {
		return nil, 0, invalid, fmt.Errorf("%w: log does not start with a RUN record", ErrMalformedRecord)
	}
	if len(b)-1 < size {
		return nil, 0, incomplete, nil
	}

	c := &cursor{b: b, pos: 1, cache: d.cache}
	var rec Record
	switch t {
	case RunType:
		rec = c.run()
	case UserType:
		rec = c.user()
	case RequestType:
		rec = c.request()
	case GroupType:
		rec = c.group()
	case ErrorType:
		rec = c.errorRecord()
	}

	switch {
	case errors.Is(c.err, errShort):
		return nil, 0, incomplete, nil
	case c.err != nil:
		return nil, 0, invalid, c.err
	case c.bad != nil:
		return nil, c.pos, skipped, c.bad
	case d.run != nil && t == RunType:
		return nil, c.pos, skipped, fmt.Errorf("%w: unexpected additional RUN record", ErrMalformedRecord)
	}

	for _, e := range c.pending {
		d.cache[e.index] = e.value
	}
	for _, index := range c.misses {
		d.counters.CacheMisses++
		d.observer.CacheMiss()
		d.logger.Warn().Int32("index", index).Msg("string cache miss")
	}
	if run, ok := rec.(*RunRecord); ok {
		d.run = run
	}
	return rec, c.pos, decoded, nil
}

type cacheEntry struct {
	index int32
	value string
}

// cursor reads big-endian fields with a sticky error. bad records a value
// error that leaves the record layout intact, so reading goes on.
type cursor struct {
	b   []byte
	pos int
	err error
	bad error

	cache   map[int32]string
	pending []cacheEntry
	misses  []int32
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if len(c.b)-c.pos < n {
		c.err = errShort
		return nil
	}
	p := c.b[c.pos : c.pos+n]
	c.pos += n
	return p
}

func (c *cursor) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
	}
}

func (c *cursor) u8() byte {
	p := c.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (c *cursor) i32() int32 {
	p := c.take(4)
	if p == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(p))
}

func (c *cursor) i64() int64 {
	p := c.take(8)
	if p == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(p))
}

func (c *cursor) flag() bool {
	v := c.u8()
	if c.err == nil && c.bad == nil && v > 1 {
		c.bad = fmt.Errorf("%w: flag byte %d", ErrMalformedRecord, v)
	}
	return v == 1
}

func (c *cursor) count(what string, limit int32) int {
	n := c.i32()
	if c.err == nil && (n < 0 || (limit > 0 && n > limit)) {
		c.fail("%s count %d", what, n)
		return 0
	}
	return int(n)
}

// str reads length, bytes and the trailing coder byte. An empty string has
// no coder byte.
func (c *cursor) str() string {
	n := c.i32()
	if c.err != nil {
		return ""
	}
	if n < 0 || n > maxStringLength {
		c.fail("string length %d", n)
		return ""
	}
	if n == 0 {
		return ""
	}
	p := c.take(int(n) + 1)
	if p == nil {
		return ""
	}
	return string(p[:n])
}

// cachedStr reads a string slot: a non-negative index introduces a new
// string, a negative one refers back to a known slot.
func (c *cursor) cachedStr() string {
	index := c.i32()
	if c.err != nil {
		return ""
	}
	if index >= 0 {
		s := c.str()
		if c.err == nil {
			c.pending = append(c.pending, cacheEntry{index: index, value: s})
		}
		return s
	}

	ref := -index
	for i := len(c.pending) - 1; i >= 0; i-- {
		if c.pending[i].index == ref {
			return c.pending[i].value
		}
	}
	if s, ok := c.cache[ref]; ok {
		return s
	}
	c.misses = append(c.misses, ref)
	return ""
}

func (c *cursor) groups() []string {
	n := c.count("group", maxGroupDepth)
	if c.err != nil {
		return nil
	}
	groups := make([]string, 0, n)
	for i := 0; i < n && c.err == nil; i++ {
		groups = append(groups, c.cachedStr())
	}
	return groups
}

func (c *cursor) run() *RunRecord {
	rec := &RunRecord{
		GatlingVersion: c.str(),
		Simulation:     c.str(),
		Start:          c.i64(),
		Description:    c.str(),
	}
	scenarios := c.count("scenario", 0)
	for i := 0; i < scenarios && c.err == nil; i++ {
		rec.Scenarios = append(rec.Scenarios, c.str())
	}
	rec.Assertions = c.count("assertion", 0)
	for i := 0; i < rec.Assertions && c.err == nil; i++ {
		n := c.i32()
		if c.err == nil && n < 0 {
			c.fail("assertion length %d", n)
		}
		c.take(int(n))
	}
	return rec
}

func (c *cursor) user() *UserRecord {
	return &UserRecord{
		Scenario:  c.i32(),
		Start:     c.flag(),
		Timestamp: c.i32(),
	}
}

func (c *cursor) request() *RequestRecord {
	return &RequestRecord{
		Groups:  c.groups(),
		Name:    c.cachedStr(),
		Start:   c.i32(),
		End:     c.i32(),
		Success: c.flag(),
		Message: c.cachedStr(),
	}
}

func (c *cursor) group() *GroupRecord {
	return &GroupRecord{
		Groups:    c.groups(),
		Start:     c.i32(),
		End:       c.i32(),
		Cumulated: c.i32(),
		Success:   c.flag(),
	}
}

func (c *cursor) errorRecord() *ErrorRecord {
	return &ErrorRecord{
		Message:   c.cachedStr(),
		Timestamp: c.i32(),
	}
}
