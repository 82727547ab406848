// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and match with errors.Is.
var (
	// Record decoding errors
	ErrMalformedRecord = errors.New("usbcmp: not a usbmon packet")
	ErrValueKind       = errors.New("usbcmp: value kind does not match field encoding")

	// Schema misuse
	ErrUnknownField        = errors.New("usbcmp: unknown field")
	ErrUnknownTransferType = errors.New("usbcmp: unknown transfer type")

	// Source errors
	ErrSourceUnavailable = errors.New("usbcmp: capture source unavailable")
	ErrStreamTruncated   = errors.New("usbcmp: stream ended before stream 0")

	// Configuration errors
	ErrConfigInvalid = errors.New("usbcmp: invalid configuration")
)
