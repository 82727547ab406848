// Package pcapfile writes records to a pcap file.
package pcapfile

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/usbcmp/internal/core"
)

// DefaultSnaplen matches the kernel's usbmon capture limit.
const DefaultSnaplen = 262144

// Sink writes a pcap header on creation and one packet record per Write.
type Sink struct {
	w      *pcapgo.Writer
	closer io.Closer
	count  int
}

// Create creates (or truncates) path and writes the file header; "-" writes
// to standard output.
func Create(path string, snaplen uint32, linkType layers.LinkType) (*Sink, error) {
	var wc io.WriteCloser
	if path == "-" {
		wc = nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create %s: %w", core.ErrSourceUnavailable, path, err)
		}
		wc = f
	}

	s, err := NewSink(wc, snaplen, linkType)
	if err != nil {
		wc.Close()
		return nil, err
	}
	s.closer = wc
	return s, nil
}

// NewSink writes the pcap file header to w.
func NewSink(w io.Writer, snaplen uint32, linkType layers.LinkType) (*Sink, error) {
	if snaplen == 0 {
		snaplen = DefaultSnaplen
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snaplen, linkType); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Sink{w: pw}, nil
}

// Write appends one record. The capture length is taken from data; the
// original length is raised to match if the record grew.
func (s *Sink) Write(ci gopacket.CaptureInfo, data []byte) error {
	ci.CaptureLength = len(data)
	if ci.Length < len(data) {
		ci.Length = len(data)
	}
	if err := s.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write record %d: %w", s.count, err)
	}
	s.count++
	return nil
}

// Count is the number of records written.
func (s *Sink) Count() int { return s.count }

func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
