package usbmon

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/gopacket"

	"firestige.xyz/usbcmp/internal/core"
)

// PacketView wraps one usbmon record. Fields are decoded on first access and
// cached until they are written through Set.
type PacketView struct {
	info  gopacket.CaptureInfo
	buf   []byte
	order binary.ByteOrder
	cache map[string]Value
}

// Option configures a PacketView at decode time.
type Option func(*PacketView)

// WithByteOrder sets the byte order of the multi-byte header fields. usbmon
// writes them in host order; the default is little-endian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(p *PacketView) {
		if order != nil {
			p.order = order
		}
	}
}

// Decode validates rec and returns a view over a private copy of its bytes.
func Decode(rec core.Record, opts ...Option) (*PacketView, error) {
	if len(rec.Data) < HeaderLen {
		return nil, fmt.Errorf("%w: record is %d bytes, header needs %d",
			core.ErrMalformedRecord, len(rec.Data), HeaderLen)
	}

	p := &PacketView{
		info:  rec.Info,
		buf:   append([]byte(nil), rec.Data...),
		order: binary.LittleEndian,
		cache: make(map[string]Value),
	}
	for _, opt := range opts {
		opt(p)
	}

	ev, _ := p.Get(FieldEventType)
	if !validEventType(ev.Char()) {
		return nil, fmt.Errorf("%w: event type %s", core.ErrMalformedRecord, ev)
	}
	xt, _ := p.Get(FieldXferType)
	if _, err := ClassOf(uint8(xt.Uint())); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	return p, nil
}

// Get returns the decoded value of the named field. Conditional fields
// return NotApplicable when the packet's transfer class or setup flag rules
// them out.
func (p *PacketView) Get(name string) (Value, error) {
	if v, ok := p.cache[name]; ok {
		if p.applicable(name) {
			return v, nil
		}
		return NotApplicable(), nil
	}

	d, err := DescriptorOf(name)
	if err != nil {
		return Value{}, err
	}
	if !p.applicable(name) {
		return NotApplicable(), nil
	}

	v := p.unpack(d)
	p.cache[name] = v
	return v, nil
}

// Set drops any cached value for the field and writes v at the field's
// offset. Other cached fields are left alone, including conditional fields
// whose precondition the write may have changed.
func (p *PacketView) Set(name string, v Value) error {
	d, err := DescriptorOf(name)
	if err != nil {
		return err
	}
	delete(p.cache, name)

	if d.Encoding == EncVarBytes {
		if v.Kind() != KindBytes || len(v.b) != p.DataLen() {
			return fmt.Errorf("%w: %s needs %d bytes, got %s",
				core.ErrValueKind, name, p.DataLen(), v.Kind())
		}
		copy(p.buf[HeaderLen:], v.b)
		return nil
	}
	return pack(p.buf, d, v, p.order)
}

// FieldDict decodes every schema field once.
func (p *PacketView) FieldDict() (map[string]Value, error) {
	dict := make(map[string]Value, len(schema))
	for _, d := range schema {
		v, err := p.Get(d.Name)
		if err != nil {
			return nil, err
		}
		dict[d.Name] = v
	}
	return dict, nil
}

// FieldDiff is one field whose value differs between two packets.
type FieldDiff struct {
	Field string
	A, B  Value
}

// Diff compares every schema field of p and other, in header order.
func (p *PacketView) Diff(other *PacketView) ([]FieldDiff, error) {
	var diffs []FieldDiff
	for _, d := range schema {
		a, err := p.Get(d.Name)
		if err != nil {
			return nil, err
		}
		b, err := other.Get(d.Name)
		if err != nil {
			return nil, err
		}
		if !a.Equal(b) {
			diffs = append(diffs, FieldDiff{Field: d.Name, A: a, B: b})
		}
	}
	return diffs, nil
}

// Copy returns a view over an independent copy of the same bytes.
func (p *PacketView) Copy() *PacketView {
	return &PacketView{
		info:  p.info,
		buf:   append([]byte(nil), p.buf...),
		order: p.order,
		cache: make(map[string]Value),
	}
}

// Header returns the capture header the record was read with.
func (p *PacketView) Header() gopacket.CaptureInfo { return p.info }

// Len is the total record length, header included.
func (p *PacketView) Len() int { return len(p.buf) }

// DataLen is the payload length following the fixed header.
func (p *PacketView) DataLen() int { return len(p.buf) - HeaderLen }

// Data returns a copy of the payload.
func (p *PacketView) Data() []byte {
	return append([]byte(nil), p.buf[HeaderLen:]...)
}

// HexDump renders the first n payload bytes.
func (p *PacketView) HexDump(n int) string {
	return HexDump(p.buf[HeaderLen:], n)
}

// Class returns the transfer class. Decode guarantees it is valid unless
// xfer_type was overwritten since.
func (p *PacketView) Class() TransferClass {
	v, _ := p.Get(FieldXferType)
	return TransferClass(v.Uint())
}

func (p *PacketView) IsIsochronous() bool { return p.Class() == Isochronous }
func (p *PacketView) IsInterrupt() bool   { return p.Class() == Interrupt }
func (p *PacketView) IsControl() bool     { return p.Class() == Control }
func (p *PacketView) IsBulk() bool        { return p.Class() == Bulk }

// HasSetup reports whether the setup region holds a setup packet.
func (p *PacketView) HasSetup() bool {
	v, _ := p.Get(FieldFlagSetup)
	return setupPresent(v.Char(), p.Class())
}

// Setup returns the decoded setup packet, if the packet carries one.
func (p *PacketView) Setup() (SetupPacket, bool) {
	v, err := p.Get(FieldSetup)
	if err != nil || !v.Applicable() {
		return SetupPacket{}, false
	}
	return v.Setup()
}

// Timestamp returns ts_sec + ts_usec·1e-6.
func (p *PacketView) Timestamp() float64 {
	sec, _ := p.Get(FieldTsSec)
	usec, _ := p.Get(FieldTsUsec)
	return float64(sec.Int()) + float64(usec.Int())/1e6
}

func (p *PacketView) applicable(name string) bool {
	switch name {
	case FieldSetup, FieldErrorCount, FieldNumDesc, FieldInterval, FieldStartFrame:
	default:
		return true
	}
	xt, _ := p.Get(FieldXferType)
	fs, _ := p.Get(FieldFlagSetup)
	return applicable(name, TransferClass(xt.Uint()), fs.Char())
}

func (p *PacketView) unpack(d FieldDescriptor) Value {
	b := p.buf[d.Offset:]
	switch d.Encoding {
	case EncU8:
		return Uint(uint64(b[0]))
	case EncU16:
		return Uint(uint64(p.order.Uint16(b)))
	case EncU32:
		return Uint(uint64(p.order.Uint32(b)))
	case EncU64:
		return Uint(p.order.Uint64(b))
	case EncI32:
		return Int(int64(int32(p.order.Uint32(b))))
	case EncI64:
		return Int(int64(p.order.Uint64(b)))
	case EncChar:
		return Char(b[0])
	case EncBytes:
		return Bytes(b[:d.Length])
	default:
		return Bytes(p.buf[HeaderLen:])
	}
}

// pack writes v into buf at d's offset using d's encoding.
func pack(buf []byte, d FieldDescriptor, v Value, order binary.ByteOrder) error {
	b := buf[d.Offset:]
	switch d.Encoding {
	case EncU8, EncU16, EncU32, EncU64:
		u, err := unsignedOf(d, v)
		if err != nil {
			return err
		}
		switch d.Encoding {
		case EncU8:
			b[0] = byte(u)
		case EncU16:
			order.PutUint16(b, uint16(u))
		case EncU32:
			order.PutUint32(b, uint32(u))
		default:
			order.PutUint64(b, u)
		}
	case EncI32, EncI64:
		i, err := signedOf(d, v)
		if err != nil {
			return err
		}
		if d.Encoding == EncI32 {
			order.PutUint32(b, uint32(int32(i)))
		} else {
			order.PutUint64(b, uint64(i))
		}
	case EncChar:
		if (v.kind != KindChar && v.kind != KindUint) || v.u > math.MaxUint8 {
			return kindError(d, v)
		}
		b[0] = byte(v.u)
	case EncBytes:
		if v.kind != KindBytes || len(v.b) != d.Length {
			return kindError(d, v)
		}
		copy(b[:d.Length], v.b)
	default:
		return kindError(d, v)
	}
	return nil
}

func unsignedOf(d FieldDescriptor, v Value) (uint64, error) {
	var u uint64
	switch v.kind {
	case KindUint, KindChar:
		u = v.u
	case KindInt:
		if v.i < 0 {
			return 0, kindError(d, v)
		}
		u = uint64(v.i)
	default:
		return 0, kindError(d, v)
	}
	if w := d.Encoding.Size(); w < 8 && u >= 1<<(8*w) {
		return 0, kindError(d, v)
	}
	return u, nil
}

func signedOf(d FieldDescriptor, v Value) (int64, error) {
	var i int64
	switch v.kind {
	case KindInt:
		i = v.i
	case KindUint:
		if v.u > math.MaxInt64 {
			return 0, kindError(d, v)
		}
		i = int64(v.u)
	default:
		return 0, kindError(d, v)
	}
	if d.Encoding == EncI32 && (i < math.MinInt32 || i > math.MaxInt32) {
		return 0, kindError(d, v)
	}
	return i, nil
}

func kindError(d FieldDescriptor, v Value) error {
	return fmt.Errorf("%w: %s is %s, got %s %s", core.ErrValueKind, d.Name, d.Encoding, v.Kind(), v)
}
