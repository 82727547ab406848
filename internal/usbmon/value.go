package usbmon

import (
	"bytes"
	"fmt"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNotApplicable Kind = iota
	KindUint
	KindInt
	KindChar
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNotApplicable:
		return "n/a"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindChar:
		return "char"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a decoded field. A conditional field whose precondition does not
// hold decodes to NotApplicable, which is distinct from every decoded zero.
type Value struct {
	kind Kind
	u    uint64
	i    int64
	b    []byte
}

// NotApplicable is the value of a conditional field that carries no meaning
// for the packet it was read from.
func NotApplicable() Value { return Value{} }

func Uint(v uint64) Value { return Value{kind: KindUint, u: v} }

func Int(v int64) Value { return Value{kind: KindInt, i: v} }

func Char(c byte) Value { return Value{kind: KindChar, u: uint64(c)} }

// Bytes wraps a copy of b.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, b: append([]byte{}, b...)}
}

func (v Value) Kind() Kind { return v.kind }

// Applicable is false only for NotApplicable.
func (v Value) Applicable() bool { return v.kind != KindNotApplicable }

// Uint returns the value of a KindUint or KindChar value, 0 otherwise.
func (v Value) Uint() uint64 {
	if v.kind == KindUint || v.kind == KindChar {
		return v.u
	}
	return 0
}

// Int returns the value of a KindInt value, 0 otherwise.
func (v Value) Int() int64 {
	if v.kind == KindInt {
		return v.i
	}
	return 0
}

// Char returns the byte of a KindChar value, 0 otherwise.
func (v Value) Char() byte {
	if v.kind == KindChar {
		return byte(v.u)
	}
	return 0
}

// Bytes returns a copy of the bytes of a KindBytes value, nil otherwise.
func (v Value) Bytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return append([]byte{}, v.b...)
}

// Setup interprets a KindBytes value as a SetupPacket.
func (v Value) Setup() (SetupPacket, bool) {
	var s SetupPacket
	if v.kind != KindBytes {
		return s, false
	}
	return s, ParseSetupPacket(v.b, &s)
}

// Equal reports whether v and o hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNotApplicable:
		return true
	case KindInt:
		return v.i == o.i
	case KindBytes:
		return bytes.Equal(v.b, o.b)
	default:
		return v.u == o.u
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNotApplicable:
		return "-"
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindChar:
		c := byte(v.u)
		if c >= 0x20 && c < 0x7f {
			return string(rune(c))
		}
		return fmt.Sprintf("\\x%02x", c)
	case KindBytes:
		return "[" + HexDump(v.b, len(v.b)) + "]"
	default:
		return "?"
	}
}

// MarshalYAML renders the value for field dumps.
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindNotApplicable:
		return nil, nil
	case KindUint:
		return v.u, nil
	case KindInt:
		return v.i, nil
	default:
		return v.String(), nil
	}
}
