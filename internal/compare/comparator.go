// Package compare walks several capture streams of the same USB traffic in
// lockstep and reports, frame by frame, which streams disagree.
//
// Streams are aligned purely by ordinal position: the Kth record of every
// stream forms frame K. Nothing is realigned by timestamp or content.
package compare

import (
	"errors"
	"fmt"
	"io"

	"firestige.xyz/usbcmp/internal/core"
	"firestige.xyz/usbcmp/internal/log"
	"firestige.xyz/usbcmp/internal/usbmon"
)

// DefaultHexDumpBytes is how much payload a data frame compares.
const DefaultHexDumpBytes = 64

// Frame tags.
const (
	TagData  = "Data"
	TagSetup = "Setup"
)

// Divergence markers.
const (
	MarkSame     = " "
	MarkDiverged = "#"
)

// Sink receives the report.
type Sink interface {
	Line(marker string, frame int, tag string, value string) error
	EndFrame() error
}

// Stats summarizes a run.
type Stats struct {
	Frames          int // frames compared
	DivergentFrames int // frames with at least one "#" line
	DivergentLines  int // "#" lines
}

// Comparator runs the lockstep comparison. It is single-use and not safe
// for concurrent use.
type Comparator struct {
	producers  []core.Producer
	sink       Sink
	hexBytes   int
	decodeOpts []usbmon.Option
	logger     log.Logger

	frame     int
	firstSeen []float64
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithHexDumpBytes sets how many payload bytes a data frame compares.
func WithHexDumpBytes(n int) Option {
	return func(c *Comparator) {
		if n > 0 {
			c.hexBytes = n
		}
	}
}

// WithDecodeOptions passes options to usbmon.Decode for every record.
func WithDecodeOptions(opts ...usbmon.Option) Option {
	return func(c *Comparator) {
		c.decodeOpts = append(c.decodeOpts, opts...)
	}
}

// WithLogger overrides the process logger.
func WithLogger(l log.Logger) Option {
	return func(c *Comparator) {
		c.logger = l
	}
}

// New creates a comparator over producers; producers[0] is the reference
// stream and decides when the run ends.
func New(producers []core.Producer, sink Sink, opts ...Option) (*Comparator, error) {
	if len(producers) == 0 {
		return nil, fmt.Errorf("%w: at least one stream is required", core.ErrConfigInvalid)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", core.ErrConfigInvalid)
	}

	c := &Comparator{
		producers: producers,
		sink:      sink,
		hexBytes:  DefaultHexDumpBytes,
		logger:    log.GetLogger(),
		frame:     1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run compares frames until stream 0 is exhausted. Any read or decode
// failure aborts the run; frames already reported stay reported.
func (c *Comparator) Run() (Stats, error) {
	var stats Stats
	for {
		records, done, err := c.pull()
		if err != nil {
			return stats, err
		}
		if done {
			c.logger.WithField("frames", stats.Frames).Debug("stream 0 exhausted")
			return stats, nil
		}

		views, err := c.decode(records)
		if err != nil {
			return stats, err
		}

		diverged, err := c.compareFrame(views)
		if err != nil {
			return stats, err
		}

		stats.Frames++
		if diverged > 0 {
			stats.DivergentFrames++
			stats.DivergentLines += diverged
		}
		c.frame++
	}
}

// pull reads one record from every producer, in index order. Stream 0
// reaching EOF ends the run even if other streams still have records.
func (c *Comparator) pull() ([]core.Record, bool, error) {
	records := make([]core.Record, len(c.producers))
	ended := make([]bool, len(c.producers))

	for i, p := range c.producers {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			ended[i] = true
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("frame %d stream %d: %w", c.frame, i, err)
		}
		records[i] = rec
	}

	if ended[0] {
		return nil, true, nil
	}
	for i, e := range ended {
		if e {
			return nil, false, fmt.Errorf("%w: stream %d at frame %d", core.ErrStreamTruncated, i, c.frame)
		}
	}
	return records, false, nil
}

func (c *Comparator) decode(records []core.Record) ([]*usbmon.PacketView, error) {
	views := make([]*usbmon.PacketView, len(records))
	for i, rec := range records {
		v, err := usbmon.Decode(rec, c.decodeOpts...)
		if err != nil {
			return nil, fmt.Errorf("frame %d stream %d: %w", c.frame, i, err)
		}
		views[i] = v
	}
	return views, nil
}

// compareFrame reports one frame and returns the number of diverged lines.
// Every line is produced before any is written, so a failing frame emits
// nothing.
func (c *Comparator) compareFrame(views []*usbmon.PacketView) (int, error) {
	dict, err := views[0].FieldDict()
	if err != nil {
		return 0, err
	}
	setupFrame := dict[usbmon.FieldSetup].Applicable()

	tag := TagData
	if setupFrame {
		tag = TagSetup
	}

	var acc accumulator
	markers := make([]string, len(views))
	values := make([]string, len(views))
	diverged := 0
	position := 0

	for i, v := range views {
		values[i] = c.canonical(v, setupFrame)
		markers[i] = acc.mark(values[i])
		if markers[i] == MarkDiverged {
			diverged++
		}

		if setupFrame {
			c.recordFirstSeen(position, v)
			position++
		}
	}

	for i := range views {
		if err := c.sink.Line(markers[i], c.frame, tag, values[i]); err != nil {
			return 0, fmt.Errorf("failed to write report: %w", err)
		}
	}
	if err := c.sink.EndFrame(); err != nil {
		return 0, fmt.Errorf("failed to write report: %w", err)
	}

	if diverged > 0 && c.logger.IsDebugEnabled() {
		c.logger.WithFields(map[string]interface{}{
			"frame":    c.frame,
			"tag":      tag,
			"diverged": diverged,
		}).Debug("streams disagree")
	}
	return diverged, nil
}

// canonical is the value compared across streams: the payload hex dump for
// data frames, the decoded setup packet for setup frames. A stream whose
// packet carries no setup in a setup frame compares as "".
func (c *Comparator) canonical(v *usbmon.PacketView, setupFrame bool) string {
	if !setupFrame {
		return v.HexDump(c.hexBytes)
	}
	s, ok := v.Setup()
	if !ok {
		return ""
	}
	return s.String()
}

// recordFirstSeen keeps, per position within a setup frame, the first
// non-zero timestamp observed across frames. Nothing reads it back yet.
func (c *Comparator) recordFirstSeen(position int, v *usbmon.PacketView) {
	for len(c.firstSeen) <= position {
		c.firstSeen = append(c.firstSeen, 0)
	}
	if c.firstSeen[position] == 0 {
		c.firstSeen[position] = v.Timestamp()
	}
}
