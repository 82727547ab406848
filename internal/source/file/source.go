// Package file reads usbmon records from pcap and pcapng capture files.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/usbcmp/internal/core"
	"firestige.xyz/usbcmp/internal/log"
)

// LinkTypeLinuxUSBMmapped is LINKTYPE_USB_LINUX_MMAPPED, the link type whose
// records carry the full 64-byte usbmon header.
const LinkTypeLinuxUSBMmapped layers.LinkType = 220

// LinkTypeLinuxUSB48 is LINKTYPE_USB_LINUX, the link type whose records carry
// the legacy 48-byte usbmon header.
const LinkTypeLinuxUSB48 layers.LinkType = 189

// pcapng section header block type; identical in either byte order.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source yields the records of one capture file. It is not safe for
// concurrent use.
type Source struct {
	name     string
	closer   io.Closer
	reader   packetReader
	filter   *Filter
	filterBy FilterSpec

	read    int
	skipped int
}

// Option configures a Source.
type Option func(*Source)

// WithFilter drops records that do not match spec.
func WithFilter(spec FilterSpec) Option {
	return func(s *Source) {
		s.filterBy = spec
	}
}

// Open opens a capture file; "-" reads standard input.
func Open(path string, opts ...Option) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file path is required", core.ErrSourceUnavailable)
	}

	var rc io.ReadCloser
	if path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open capture %s: %w", core.ErrSourceUnavailable, path, err)
		}
		rc = f
	}

	s, err := NewSource(rc, path, opts...)
	if err != nil {
		rc.Close()
		return nil, err
	}
	s.closer = rc
	return s, nil
}

// NewSource reads a pcap or pcapng stream from r. name is used in errors
// and logs only.
func NewSource(r io.Reader, name string, opts ...Option) (*Source, error) {
	s := &Source{name: name}
	for _, opt := range opts {
		opt(s)
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read capture header of %s: %w", core.ErrSourceUnavailable, name, err)
	}

	if string(magic) == string(ngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pcapng file %s: %w", core.ErrSourceUnavailable, name, err)
		}
		s.reader = ng
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pcap file %s: %w", core.ErrSourceUnavailable, name, err)
		}
		s.reader = pr
	}

	if s.filterBy.Enabled() {
		f, err := CompileFilter(s.filterBy)
		if err != nil {
			return nil, err
		}
		s.filter = f
	}

	logger := log.GetLogger().WithField("source", name)
	switch lt := s.reader.LinkType(); lt {
	case LinkTypeLinuxUSBMmapped:
	case LinkTypeLinuxUSB48:
		logger.Warn("capture uses the 48-byte usbmon header; fields past len_cap will not line up")
	default:
		logger.Warnf("capture link type %s is not usbmon", lt)
	}

	return s, nil
}

// Next returns the next record, or io.EOF when the capture is exhausted.
func (s *Source) Next() (core.Record, error) {
	for {
		data, ci, err := s.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return core.Record{}, io.EOF
		}
		if err != nil {
			return core.Record{}, fmt.Errorf("%w: failed to read %s: %w", core.ErrSourceUnavailable, s.name, err)
		}
		s.read++

		if s.filter != nil && !s.filter.Match(data) {
			s.skipped++
			continue
		}
		return core.Record{Info: ci, Data: data}, nil
	}
}

// Name returns the path the source was opened with.
func (s *Source) Name() string { return s.name }

// LinkType returns the capture's link type.
func (s *Source) LinkType() layers.LinkType { return s.reader.LinkType() }

// Read is the number of records read from the capture, Skipped the number
// of those the filter dropped.
func (s *Source) Read() int    { return s.read }
func (s *Source) Skipped() int { return s.skipped }

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
