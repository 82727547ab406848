// Package core defines the record types shared by sources, the codec and the comparator.
package core

import "github.com/google/gopacket"

// Record is one capture record as read from a source: the capture header
// and the raw usbmon bytes (64-byte header followed by the payload).
type Record struct {
	Info gopacket.CaptureInfo
	Data []byte
}

// Producer yields records one at a time. Next returns io.EOF once the
// underlying stream is exhausted.
type Producer interface {
	Next() (Record, error)
}

// ProducerFunc adapts a plain function to the Producer interface.
type ProducerFunc func() (Record, error)

// Next calls f.
func (f ProducerFunc) Next() (Record, error) { return f() }
