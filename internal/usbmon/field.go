// Package usbmon decodes Linux usbmon binary records into field-addressable
// packet views.
//
// A record is a fixed 64-byte header followed by the captured payload. Each
// header field lives at a fixed offset; a few of them are only meaningful
// for certain transfer types or when a setup packet was captured, and the
// setup region shares its bytes with the isochronous error/descriptor
// counters.
package usbmon

import (
	"fmt"

	"firestige.xyz/usbcmp/internal/core"
)

// HeaderLen is the size of the fixed usbmon header (mmapped binary API).
const HeaderLen = 64

// Field names.
const (
	FieldURB        = "urb"
	FieldEventType  = "event_type"
	FieldXferType   = "xfer_type"
	FieldEpNum      = "epnum"
	FieldDevNum     = "devnum"
	FieldBusNum     = "busnum"
	FieldFlagSetup  = "flag_setup"
	FieldFlagData   = "flag_data"
	FieldTsSec      = "ts_sec"
	FieldTsUsec     = "ts_usec"
	FieldStatus     = "status"
	FieldLength     = "length"
	FieldLenCap     = "len_cap"
	FieldSetup      = "setup"
	FieldErrorCount = "error_count"
	FieldNumDesc    = "numdesc"
	FieldInterval   = "interval"
	FieldStartFrame = "start_frame"
	FieldXferFlags  = "xfer_flags"
	FieldNDesc      = "ndesc"
	FieldData       = "data"
)

// Encoding is the binary encoding of a header field.
type Encoding uint8

const (
	EncU8 Encoding = iota
	EncU16
	EncU32
	EncU64
	EncI32
	EncI64
	EncChar
	EncBytes    // fixed-length byte span, Length bytes
	EncVarBytes // trailing payload, length derived from the record
)

var encodingNames = [...]string{"u8", "u16", "u32", "u64", "i32", "i64", "char", "bytes", "varbytes"}

func (e Encoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// Size returns the encoded width in bytes, or 0 for EncVarBytes.
func (e Encoding) Size() int {
	switch e {
	case EncU8, EncChar:
		return 1
	case EncU16:
		return 2
	case EncU32, EncI32:
		return 4
	case EncU64, EncI64:
		return 8
	default:
		return 0
	}
}

// FieldDescriptor locates one named field inside a record.
type FieldDescriptor struct {
	Name     string
	Encoding Encoding
	Offset   int
	Length   int // only for EncBytes
}

// Width returns the number of header bytes the field occupies.
func (d FieldDescriptor) Width() int {
	if d.Encoding == EncBytes {
		return d.Length
	}
	return d.Encoding.Size()
}

// schema is kept in header order; setup, error_count and numdesc overlap at
// offset 40.
var schema = []FieldDescriptor{
	{Name: FieldURB, Encoding: EncU64, Offset: 0},
	{Name: FieldEventType, Encoding: EncChar, Offset: 8},
	{Name: FieldXferType, Encoding: EncU8, Offset: 9},
	{Name: FieldEpNum, Encoding: EncU8, Offset: 10},
	{Name: FieldDevNum, Encoding: EncU8, Offset: 11},
	{Name: FieldBusNum, Encoding: EncU16, Offset: 12},
	{Name: FieldFlagSetup, Encoding: EncChar, Offset: 14},
	{Name: FieldFlagData, Encoding: EncChar, Offset: 15},
	{Name: FieldTsSec, Encoding: EncI64, Offset: 16},
	{Name: FieldTsUsec, Encoding: EncI32, Offset: 24},
	{Name: FieldStatus, Encoding: EncI32, Offset: 28},
	{Name: FieldLength, Encoding: EncU32, Offset: 32},
	{Name: FieldLenCap, Encoding: EncU32, Offset: 36},
	{Name: FieldSetup, Encoding: EncBytes, Offset: 40, Length: SetupPacketSize},
	{Name: FieldErrorCount, Encoding: EncI32, Offset: 40},
	{Name: FieldNumDesc, Encoding: EncI32, Offset: 44},
	{Name: FieldInterval, Encoding: EncI32, Offset: 48},
	{Name: FieldStartFrame, Encoding: EncI32, Offset: 52},
	{Name: FieldXferFlags, Encoding: EncU32, Offset: 56},
	{Name: FieldNDesc, Encoding: EncU32, Offset: 60},
	{Name: FieldData, Encoding: EncVarBytes, Offset: HeaderLen},
}

var schemaIndex = func() map[string]int {
	m := make(map[string]int, len(schema))
	for i, d := range schema {
		m[d.Name] = i
	}
	return m
}()

// DescriptorOf returns the descriptor of the named field.
func DescriptorOf(name string) (FieldDescriptor, error) {
	i, ok := schemaIndex[name]
	if !ok {
		return FieldDescriptor{}, fmt.Errorf("%w: %q", core.ErrUnknownField, name)
	}
	return schema[i], nil
}

// Fields returns every schema field in header order. The slice is a copy.
func Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(schema))
	copy(out, schema)
	return out
}

// FieldNames returns the schema field names in header order.
func FieldNames() []string {
	names := make([]string, len(schema))
	for i, d := range schema {
		names[i] = d.Name
	}
	return names
}
