package compare

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/usbcmp/internal/core"
	"firestige.xyz/usbcmp/internal/usbmon"
)

type line struct {
	marker string
	frame  int
	tag    string
	value  string
}

type recordingSink struct {
	lines  []line
	frames int
	err    error
}

func (s *recordingSink) Line(marker string, frame int, tag string, value string) error {
	if s.err != nil {
		return s.err
	}
	s.lines = append(s.lines, line{marker, frame, tag, value})
	return nil
}

func (s *recordingSink) EndFrame() error {
	s.frames++
	return nil
}

type sliceProducer struct {
	records []core.Record
	err     error // returned instead of io.EOF once records run out
}

func (p *sliceProducer) Next() (core.Record, error) {
	if len(p.records) == 0 {
		if p.err != nil {
			return core.Record{}, p.err
		}
		return core.Record{}, io.EOF
	}
	r := p.records[0]
	p.records = p.records[1:]
	return r, nil
}

func stream(records ...core.Record) *sliceProducer {
	return &sliceProducer{records: records}
}

func packet(xfer layers.USBTransportType, flagSetup byte, setup []byte, tsSec int64, tsUsec int32, payload []byte) core.Record {
	b := make([]byte, usbmon.HeaderLen+len(payload))
	le := binary.LittleEndian
	le.PutUint64(b[0:], 0xffff8880deadbeef)
	b[8] = byte(layers.USBEventTypeComplete)
	b[9] = uint8(xfer)
	b[10] = 0x80
	b[11] = 2
	le.PutUint16(b[12:], 1)
	b[14] = flagSetup
	b[15] = '='
	le.PutUint64(b[16:], uint64(tsSec))
	le.PutUint32(b[24:], uint32(tsUsec))
	le.PutUint32(b[32:], uint32(len(payload)))
	le.PutUint32(b[36:], uint32(len(payload)))
	copy(b[40:48], setup)
	copy(b[usbmon.HeaderLen:], payload)
	return core.Record{
		Info: gopacket.CaptureInfo{
			Timestamp:     time.Unix(tsSec, int64(tsUsec)*1000),
			CaptureLength: len(b),
			Length:        len(b),
		},
		Data: b,
	}
}

func bulk(payload ...byte) core.Record {
	return packet(layers.USBTransportTypeBulk, '-', nil, 1, 0, payload)
}

func control(setup []byte, tsSec int64, tsUsec int32) core.Record {
	return packet(layers.USBTransportTypeControl, 0, setup, tsSec, tsUsec, nil)
}

func controlNoSetup() core.Record {
	return packet(layers.USBTransportTypeControl, '-', nil, 1, 0, nil)
}

var getDescriptor = []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}

const getDescriptorString = "bmRequestType=0x80 bRequest=0x06 wValue=0x0100 wIndex=0x0000 wLength=18"

func run(t *testing.T, producers ...core.Producer) (*recordingSink, Stats, error) {
	t.Helper()
	sink := &recordingSink{}
	c, err := New(producers, sink)
	require.NoError(t, err)
	stats, err := c.Run()
	return sink, stats, err
}

func filled(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func markersOf(lines []line) []string {
	markers := make([]string, 0, len(lines))
	for _, l := range lines {
		markers = append(markers, l.marker)
	}
	return markers
}

func TestScenarioA(t *testing.T) {
	low, high := filled(64, 0x00), filled(64, 0xff)
	sink, stats, err := run(t, stream(bulk(low...)), stream(bulk(high...)))
	require.NoError(t, err)

	assert.Equal(t, []line{
		{" ", 1, TagData, usbmon.HexDump(low, 64)},
		{"#", 1, TagData, usbmon.HexDump(high, 64)},
	}, sink.lines)
	assert.Equal(t, 1, stats.Frames)
}

func TestScenarioB(t *testing.T) {
	sink, stats, err := run(t,
		stream(control(getDescriptor, 1, 0)),
		stream(control(getDescriptor, 1, 0)),
	)
	require.NoError(t, err)

	assert.Equal(t, []line{
		{" ", 1, TagSetup, getDescriptorString},
		{" ", 1, TagSetup, getDescriptorString},
	}, sink.lines)
	assert.Zero(t, stats.DivergentLines)
}

func TestScenarioC(t *testing.T) {
	five := func() *sliceProducer {
		return stream(bulk(1), bulk(2), bulk(3), bulk(4), bulk(5))
	}
	sink, stats, err := run(t, stream(bulk(1), bulk(2)), five(), five())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Frames)
	assert.Equal(t, 2, sink.frames)
	require.Len(t, sink.lines, 6)
	assert.Equal(t, 2, sink.lines[5].frame)
}

func TestZeroSetupFlagOnBulkIsDataFrame(t *testing.T) {
	low, high := filled(64, 0x00), filled(64, 0xff)
	sink, _, err := run(t,
		stream(packet(layers.USBTransportTypeBulk, 0, nil, 1, 0, low)),
		stream(packet(layers.USBTransportTypeBulk, 0, nil, 1, 0, high)),
	)
	require.NoError(t, err)

	require.Len(t, sink.lines, 2)
	assert.Equal(t, TagData, sink.lines[0].tag)
	assert.Equal(t, TagData, sink.lines[1].tag)
	assert.Equal(t, []string{" ", "#"}, markersOf(sink.lines))
	assert.Equal(t, usbmon.HexDump(high, 64), sink.lines[1].value)
}

func TestNewRequiresStreamsAndSink(t *testing.T) {
	_, err := New(nil, &recordingSink{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New([]core.Producer{stream()}, nil)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestIdenticalDataFrames(t *testing.T) {
	sink, stats, err := run(t, stream(bulk(0x00, 0x01)), stream(bulk(0x00, 0x01)))
	require.NoError(t, err)

	assert.Equal(t, []line{
		{" ", 1, TagData, "00 01"},
		{" ", 1, TagData, "00 01"},
	}, sink.lines)
	assert.Equal(t, 1, sink.frames)
	assert.Equal(t, Stats{Frames: 1}, stats)
}

func TestDivergentDataFrame(t *testing.T) {
	sink, stats, err := run(t, stream(bulk(0x00, 0x01)), stream(bulk(0x00, 0x02)))
	require.NoError(t, err)

	assert.Equal(t, []line{
		{" ", 1, TagData, "00 01"},
		{"#", 1, TagData, "00 02"},
	}, sink.lines)
	assert.Equal(t, Stats{Frames: 1, DivergentFrames: 1, DivergentLines: 1}, stats)
}

func TestSetupFrameWithMissingSetup(t *testing.T) {
	sink, stats, err := run(t,
		stream(control(getDescriptor, 10, 500000)),
		stream(controlNoSetup()),
	)
	require.NoError(t, err)

	assert.Equal(t, []line{
		{" ", 1, TagSetup, getDescriptorString},
		{"#", 1, TagSetup, ""},
	}, sink.lines)
	assert.Equal(t, 1, stats.DivergentLines)
}

func TestEmptyFirstValueDoesNotPin(t *testing.T) {
	// stream 0 has a setup frame, stream 1 lacks a setup so it compares as "",
	// and streams 2 and 3 are judged against the first non-empty value.
	other := []byte{0x00, 0x09, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
	sink, _, err := run(t,
		stream(control(getDescriptor, 1, 0)),
		stream(controlNoSetup()),
		stream(control(getDescriptor, 1, 0)),
		stream(control(other, 1, 0)),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{" ", "#", " ", "#"}, markersOf(sink.lines))
}

func TestEmptyPayloadsPinLater(t *testing.T) {
	// "" never pins, so an empty payload in stream 0 lets stream 1 set the
	// reference and stream 0 itself is never marked.
	sink, _, err := run(t,
		stream(bulk()),
		stream(bulk(0xaa)),
		stream(bulk(0xbb)),
	)
	require.NoError(t, err)

	assert.Equal(t, []line{
		{" ", 1, TagData, ""},
		{" ", 1, TagData, "aa"},
		{"#", 1, TagData, "bb"},
	}, sink.lines)
}

func TestFrameCounterIsContinuous(t *testing.T) {
	s0 := stream(bulk(1), control(getDescriptor, 1, 0), bulk(3))
	s1 := stream(bulk(1), control(getDescriptor, 1, 0), bulk(3))
	sink, stats, err := run(t, s0, s1)
	require.NoError(t, err)

	require.Len(t, sink.lines, 6)
	for i, l := range sink.lines {
		assert.Equal(t, i/2+1, l.frame)
	}
	assert.Equal(t, TagSetup, sink.lines[2].tag)
	assert.Equal(t, 3, sink.frames)
	assert.Equal(t, 3, stats.Frames)
}

func TestStreamZeroEndsRun(t *testing.T) {
	sink, stats, err := run(t,
		stream(bulk(1)),
		stream(bulk(1), bulk(2), bulk(3)),
	)
	require.NoError(t, err)
	assert.Len(t, sink.lines, 2)
	assert.Equal(t, 1, stats.Frames)
}

func TestEmptyStreamZero(t *testing.T) {
	sink, stats, err := run(t, stream(), stream(bulk(1)))
	require.NoError(t, err)
	assert.Empty(t, sink.lines)
	assert.Zero(t, stats.Frames)
}

func TestTruncatedSecondaryStream(t *testing.T) {
	sink, stats, err := run(t,
		stream(bulk(1), bulk(2)),
		stream(bulk(1)),
	)
	require.ErrorIs(t, err, core.ErrStreamTruncated)
	assert.Contains(t, err.Error(), "stream 1 at frame 2")
	assert.Len(t, sink.lines, 2)
	assert.Equal(t, 1, stats.Frames)
}

func TestMalformedRecordAbortsWithoutPartialFrame(t *testing.T) {
	short := core.Record{Data: make([]byte, 10)}
	sink, stats, err := run(t,
		stream(bulk(1), bulk(2)),
		stream(bulk(1), short),
	)
	require.ErrorIs(t, err, core.ErrMalformedRecord)
	assert.Contains(t, err.Error(), "frame 2 stream 1")

	assert.Len(t, sink.lines, 2, "only frame 1 is reported")
	assert.Equal(t, 1, sink.frames)
	assert.Equal(t, 1, stats.Frames)
}

func TestReadErrorPropagates(t *testing.T) {
	broken := &sliceProducer{err: fmt.Errorf("%w: disk gone", core.ErrSourceUnavailable)}
	_, _, err := run(t, stream(bulk(1)), broken)
	assert.ErrorIs(t, err, core.ErrSourceUnavailable)
}

func TestSinkErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	c, err := New([]core.Producer{stream(bulk(1))}, &recordingSink{err: boom})
	require.NoError(t, err)

	_, err = c.Run()
	assert.ErrorIs(t, err, boom)
}

func TestHexDumpWidth(t *testing.T) {
	sink := &recordingSink{}
	c, err := New([]core.Producer{stream(bulk(1, 2, 3, 4))}, sink, WithHexDumpBytes(2))
	require.NoError(t, err)
	_, err = c.Run()
	require.NoError(t, err)

	assert.Equal(t, "01 02", sink.lines[0].value)
}

func TestDefaultHexDumpWidth(t *testing.T) {
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	sink, _, err := run(t, stream(bulk(payload...)))
	require.NoError(t, err)

	assert.Equal(t, usbmon.HexDump(payload, 64), sink.lines[0].value)
	assert.Len(t, sink.lines[0].value, 64*3-1)
}

func TestFirstSeenBookkeeping(t *testing.T) {
	s0 := stream(
		control(getDescriptor, 0, 0),
		bulk(1),
		control(getDescriptor, 20, 250000),
	)
	s1 := stream(
		control(getDescriptor, 10, 500000),
		bulk(1),
		control(getDescriptor, 30, 0),
	)
	c, err := New([]core.Producer{s0, s1}, &recordingSink{})
	require.NoError(t, err)
	_, err = c.Run()
	require.NoError(t, err)

	// position 0 stays empty on the first setup frame and is filled by the
	// second; position 1 keeps its first value.
	require.Len(t, c.firstSeen, 2)
	assert.InDelta(t, 20.25, c.firstSeen[0], 1e-9)
	assert.InDelta(t, 10.5, c.firstSeen[1], 1e-9)
}

func TestAccumulator(t *testing.T) {
	var acc accumulator
	assert.Equal(t, MarkSame, acc.mark(""))
	assert.Equal(t, MarkSame, acc.mark("a"))
	assert.Equal(t, MarkDiverged, acc.mark(""))
	assert.Equal(t, MarkDiverged, acc.mark("b"))
	assert.Equal(t, MarkSame, acc.mark("a"))
}
