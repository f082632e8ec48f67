package sse

import (
	"os"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	records []Record
}

func (c *collector) handle(r Record) {
	c.records = append(c.records, r)
}

func (c *collector) count(kind Kind) int {
	n := 0
	for _, r := range c.records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func newTestDecoder() (*Decoder, *collector) {
	c := &collector{}
	return NewDecoder(c.handle, log.NewStdLogger(os.Stdout)), c
}

func TestDecoder_SplitAtEveryOffset(t *testing.T) {
	input := []byte("data: {\"a\":1}\n")

	for split := 0; split <= len(input); split++ {
		d, c := newTestDecoder()

		_, err := d.Write(input[:split])
		require.NoError(t, err)
		_, err = d.Write(input[split:])
		require.NoError(t, err)

		require.Len(t, c.records, 1, "split at %d", split)
		assert.Equal(t, KindMessage, c.records[0].Kind)
		assert.Equal(t, map[string]any{"a": float64(1)}, c.records[0].Data)
		assert.JSONEq(t, `{"a":1}`, string(c.records[0].Raw))
		assert.Equal(t, 0, d.Buffered())
	}
}

func TestDecoder_ByteByByte(t *testing.T) {
	d, c := newTestDecoder()
	input := "event: update\ndata: {\"n\":1}\n:heartbeat\ndata: [1,2]\n"

	for i := 0; i < len(input); i++ {
		_, _ = d.Write([]byte{input[i]})
	}

	require.Len(t, c.records, 3)
	assert.Equal(t, map[string]any{"n": float64(1)}, c.records[0].Data)
	assert.Equal(t, KindHeartbeat, c.records[1].Kind)
	assert.Equal(t, []any{float64(1), float64(2)}, c.records[2].Data)
}

func TestDecoder_Heartbeat(t *testing.T) {
	d, c := newTestDecoder()
	_, _ = d.Write([]byte(":heartbeat\n"))

	assert.Equal(t, 1, c.count(KindHeartbeat))
	assert.Equal(t, 0, c.count(KindMessage))
}

func TestDecoder_MalformedDataLineDoesNotStopStream(t *testing.T) {
	d, c := newTestDecoder()
	_, _ = d.Write([]byte("data: {not valid json\ndata: {\"ok\":true}\n"))

	require.Len(t, c.records, 1)
	assert.Equal(t, map[string]any{"ok": true}, c.records[0].Data)
	assert.Equal(t, 1, d.Dropped())
}

func TestDecoder_IgnoredLines(t *testing.T) {
	d, c := newTestDecoder()
	_, _ = d.Write([]byte(": keep-alive comment\n:heartbeats\nid: 7\nretry: 100\n\ndata:{\"nospace\":1}\nrandom text\n"))

	assert.Empty(t, c.records)
}

func TestDecoder_EventTypeIsTrackedOnly(t *testing.T) {
	d, c := newTestDecoder()
	_, _ = d.Write([]byte("event: metrics\ndata: {\"x\":1}\n"))

	assert.Equal(t, "metrics", d.EventType())
	require.Len(t, c.records, 1)
	assert.Equal(t, KindMessage, c.records[0].Kind)

	_, _ = d.Write([]byte("event: other\n"))
	assert.Equal(t, "other", d.EventType())
}

func TestDecoder_CRLFLineEndings(t *testing.T) {
	d, c := newTestDecoder()
	_, _ = d.Write([]byte(":heartbeat\r\ndata: {\"a\":2}\r\n"))

	require.Len(t, c.records, 2)
	assert.Equal(t, KindHeartbeat, c.records[0].Kind)
	assert.Equal(t, map[string]any{"a": float64(2)}, c.records[1].Data)
}

func TestDecoder_IncompleteLineIsHeld(t *testing.T) {
	d, c := newTestDecoder()
	n, err := d.Write([]byte("data: {\"a\":"))

	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Empty(t, c.records)
	assert.Equal(t, 11, d.Buffered())

	_, _ = d.Write([]byte("3}\n"))
	require.Len(t, c.records, 1)
}

func TestDecoder_MultiByteRuneSplitAcrossChunks(t *testing.T) {
	d, c := newTestDecoder()
	input := []byte("data: {\"s\":\"héllo\"}\n")
	idx := 14 // inside the two-byte é

	_, _ = d.Write(input[:idx])
	_, _ = d.Write(input[idx:])

	require.Len(t, c.records, 1)
	assert.Equal(t, map[string]any{"s": "héllo"}, c.records[0].Data)
}

func TestDecoder_HandlerMayQueryDecoder(t *testing.T) {
	var d *Decoder
	var seen string
	d = NewDecoder(func(Record) { seen = d.EventType() }, nil)

	_, _ = d.Write([]byte("event: tick\ndata: 1\n"))
	assert.Equal(t, "tick", seen)
}

func writeChunked(d *Decoder, input []byte, size int) {
	for len(input) > 0 {
		n := min(size, len(input))
		_, _ = d.Write(input[:n])
		input = input[n:]
	}
}

func TestDecoder_LongDataLineIsReassembled(t *testing.T) {
	d, c := newTestDecoder()
	payload := strings.Repeat("x", 3<<19) // 1.5 MiB
	input := []byte("data: \"" + payload + "\"\n")

	writeChunked(d, input, 64<<10)

	require.Len(t, c.records, 1)
	assert.Equal(t, payload, c.records[0].Data)
	assert.Equal(t, 0, d.Dropped())
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_OversizedCommentDoesNotLeakIntoNextLine(t *testing.T) {
	d, c := newTestDecoder()
	d.maxLine = 64

	_, _ = d.Write([]byte(":" + strings.Repeat("a", 100)))
	assert.Equal(t, 0, d.Buffered())
	_, _ = d.Write([]byte(strings.Repeat("a", 10)))
	_, _ = d.Write([]byte("data: {\"spurious\":1}\n"))

	assert.Empty(t, c.records)
	assert.Equal(t, 1, d.Dropped())

	_, _ = d.Write([]byte("data: {\"next\":1}\n"))
	require.Len(t, c.records, 1)
	assert.Equal(t, map[string]any{"next": float64(1)}, c.records[0].Data)
}

func TestDecoder_OversizedLineInOneWriteIsSkipped(t *testing.T) {
	d, c := newTestDecoder()
	d.maxLine = 64

	_, _ = d.Write([]byte("data: \"" + strings.Repeat("b", 100) + "\"\n:heartbeat\n"))

	require.Len(t, c.records, 1)
	assert.Equal(t, KindHeartbeat, c.records[0].Kind)
	assert.Equal(t, 1, d.Dropped())
}

func TestDecoder_OversizedLineSplitAcrossWrites(t *testing.T) {
	d, c := newTestDecoder()
	d.maxLine = 64
	input := []byte("event: " + strings.Repeat("e", 200) + "\ndata: {\"ok\":1}\n")

	writeChunked(d, input, 16)

	require.Len(t, c.records, 1)
	assert.Equal(t, map[string]any{"ok": float64(1)}, c.records[0].Data)
	assert.Empty(t, d.EventType())
	assert.Equal(t, 1, d.Dropped())
}
