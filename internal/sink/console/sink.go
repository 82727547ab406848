// Package console writes the comparison report as plain text lines.
package console

import (
	"bufio"
	"fmt"
	"io"
)

// Sink writes one line per stream and a blank line after every frame:
//
//	<marker> <frame:%7d> <Data|Setup> <canonical value>
type Sink struct {
	w *bufio.Writer
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: bufio.NewWriter(w)}
}

// Line writes one stream's entry of a frame.
func (s *Sink) Line(marker string, frame int, tag string, value string) error {
	_, err := fmt.Fprintf(s.w, "%s %7d %s %s\n", marker, frame, tag, value)
	return err
}

// EndFrame writes the frame separator and flushes, so a report is never
// left half-written behind a blocked producer.
func (s *Sink) EndFrame() error {
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes any buffered output.
func (s *Sink) Close() error {
	return s.w.Flush()
}
