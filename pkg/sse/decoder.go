// Package sse decodes the line-oriented server push protocol.
//
// Each newline-terminated line is one of:
//
//	data: <json>     a message payload
//	event: <label>   the event type of following data lines
//	:heartbeat       a liveness sentinel
//	:<anything>      a comment
//
// Anything else is ignored. Bytes are buffered across writes, so a line split
// anywhere by the transport is reassembled before it is parsed.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	streamerrors "Momentum/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	dataPrefix     = "data: "
	eventPrefix    = "event: "
	commentPrefix  = ":"
	heartbeatLine  = ":heartbeat"
	// maxLineSize bounds a single line. Longer lines are skipped whole,
	// through their terminating newline.
	maxLineSize = 16 << 20
)

// Kind identifies the kind of a decoded record.
type Kind int

const (
	KindMessage Kind = iota
	KindHeartbeat
)

// Record is a decoded protocol record.
type Record struct {
	Kind Kind
	// Data is the decoded JSON payload of a message.
	Data any
	// Raw is the payload text as received.
	Raw json.RawMessage
}

// Handler receives decoded records in stream order.
type Handler func(Record)

// Decoder is an io.Writer turning a byte stream into records.
type Decoder struct {
	mu        sync.Mutex
	pending   []byte
	eventType string
	handler   Handler
	logger    *log.Helper

	maxLine int
	// discarding is set while skipping the rest of an oversized line.
	discarding bool
	dropped    int
}

// NewDecoder returns a decoder delivering records to h.
func NewDecoder(h Handler, logger log.Logger) *Decoder {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Decoder{
		handler: h,
		logger:  log.NewHelper(logger),
		maxLine: maxLineSize,
	}
}

// Write appends p to the line buffer and processes every complete line.
// It never fails; malformed lines are dropped. Records are delivered after
// the internal lock is released, in line order.
func (d *Decoder) Write(p []byte) (int, error) {
	n := len(p)
	d.mu.Lock()
	var records []Record
	if d.discarding {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			d.mu.Unlock()
			return n, nil
		}
		d.discarding = false
		p = p[i+1:]
	}
	d.pending = append(d.pending, p...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		if len(line) > d.maxLine {
			d.dropOversized(len(line))
			continue
		}
		if rec, ok := d.processLine(strings.TrimSuffix(string(line), "\r")); ok {
			records = append(records, rec)
		}
	}

	if len(d.pending) > d.maxLine {
		d.dropOversized(len(d.pending))
		d.discarding = true
		d.pending = nil
	}
	if len(d.pending) == 0 {
		// drop the consumed prefix so the backing array can be reclaimed
		d.pending = nil
	}
	d.mu.Unlock()

	for _, rec := range records {
		d.handler(rec)
	}
	return n, nil
}

// dropOversized must be called with d.mu held.
func (d *Decoder) dropOversized(size int) {
	d.dropped++
	d.logger.Warnw("msg", "skipping oversized line", "size", size, "limit", d.maxLine)
}

func (d *Decoder) processLine(line string) (Record, bool) {
	switch {
	case strings.HasPrefix(line, dataPrefix):
		raw := line[len(dataPrefix):]
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			d.dropped++
			d.logger.Warnw("msg", "dropping undecodable data line",
				"error", streamerrors.NewProtocolError(line, err))
			return Record{}, false
		}
		return Record{Kind: KindMessage, Data: payload, Raw: json.RawMessage(raw)}, true
	case strings.HasPrefix(line, eventPrefix):
		d.eventType = line[len(eventPrefix):]
	case line == heartbeatLine:
		return Record{Kind: KindHeartbeat}, true
	case strings.HasPrefix(line, commentPrefix):
		// comment
	}
	return Record{}, false
}

// EventType returns the label of the most recent event line.
// It is tracked for diagnostics only and does not affect message dispatch.
func (d *Decoder) EventType() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eventType
}

// Dropped returns the number of lines discarded as malformed or oversized.
func (d *Decoder) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Buffered returns the number of bytes of the incomplete trailing line.
func (d *Decoder) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
