package file

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/net/bpf"

	"firestige.xyz/usbcmp/internal/core"
	"firestige.xyz/usbcmp/internal/usbmon"
)

const (
	offDevNum = 11
	offBusNum = 12
)

// FilterSpec selects records by bus and device number. Zero matches any.
type FilterSpec struct {
	Bus       int
	Device    int
	ByteOrder binary.ByteOrder // byte order of busnum; nil means little-endian
}

// Enabled reports whether the spec restricts anything.
func (f FilterSpec) Enabled() bool { return f.Bus != 0 || f.Device != 0 }

// Filter runs a classic BPF program over raw usbmon records.
type Filter struct {
	vm    *bpf.VM
	insns []bpf.Instruction
}

// CompileFilter builds the BPF program for spec.
func CompileFilter(spec FilterSpec) (*Filter, error) {
	if spec.Bus < 0 || spec.Bus > 0xffff {
		return nil, fmt.Errorf("%w: bus %d out of range", core.ErrConfigInvalid, spec.Bus)
	}
	if spec.Device < 0 || spec.Device > 0xff {
		return nil, fmt.Errorf("%w: device %d out of range", core.ErrConfigInvalid, spec.Device)
	}

	type check struct {
		load bpf.Instruction
		val  uint32
	}
	var checks []check

	if spec.Bus != 0 {
		// BPF half-word loads are big-endian; busnum is stored in host order.
		val := uint16(spec.Bus)
		if spec.ByteOrder == nil || spec.ByteOrder == binary.LittleEndian {
			val = bits.ReverseBytes16(val)
		}
		checks = append(checks, check{bpf.LoadAbsolute{Off: offBusNum, Size: 2}, uint32(val)})
	}
	if spec.Device != 0 {
		checks = append(checks, check{bpf.LoadAbsolute{Off: offDevNum, Size: 1}, uint32(spec.Device)})
	}

	k := len(checks)
	insns := make([]bpf.Instruction, 0, 2*k+2)
	for j, c := range checks {
		insns = append(insns,
			c.load,
			// On mismatch jump to the trailing reject.
			bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: c.val, SkipTrue: uint8(2*(k-j) - 1)},
		)
	}
	insns = append(insns,
		bpf.RetConstant{Val: 65535}, // keep
		bpf.RetConstant{Val: 0},     // drop
	)

	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("failed to build record filter: %w", err)
	}
	return &Filter{vm: vm, insns: insns}, nil
}

// Match reports whether the record passes the filter. Records too short to
// carry a header pass, so the decoder gets to reject them.
func (f *Filter) Match(data []byte) bool {
	if len(data) < usbmon.HeaderLen {
		return true
	}
	n, err := f.vm.Run(data)
	return err == nil && n > 0
}

// Instructions returns the program, for diagnostics.
func (f *Filter) Instructions() []bpf.Instruction { return f.insns }
