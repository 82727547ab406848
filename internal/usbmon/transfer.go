package usbmon

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/usbcmp/internal/core"
)

// TransferClass is the usbmon transfer type. The numeric codes differ from
// the endpoint attribute encoding in <linux/usb/ch9.h>.
type TransferClass uint8

const (
	Isochronous = TransferClass(layers.USBTransportTypeIsochronous)
	Interrupt   = TransferClass(layers.USBTransportTypeInterrupt)
	Control     = TransferClass(layers.USBTransportTypeControl)
	Bulk        = TransferClass(layers.USBTransportTypeBulk)
)

func (c TransferClass) String() string {
	switch c {
	case Isochronous:
		return "isochronous"
	case Interrupt:
		return "interrupt"
	case Control:
		return "control"
	case Bulk:
		return "bulk"
	default:
		return fmt.Sprintf("xfer(%d)", uint8(c))
	}
}

// ClassOf maps a usbmon transfer-type code to its class.
func ClassOf(code uint8) (TransferClass, error) {
	switch c := TransferClass(code); c {
	case Isochronous, Interrupt, Control, Bulk:
		return c, nil
	default:
		return 0, fmt.Errorf("%w: %d", core.ErrUnknownTransferType, code)
	}
}

// Event types as written by the kernel.
const (
	EventSubmit   = byte(layers.USBEventTypeSubmit)
	EventComplete = byte(layers.USBEventTypeComplete)
	EventError    = byte(layers.USBEventTypeError)
)

func validEventType(b byte) bool {
	return b == EventSubmit || b == EventComplete || b == EventError
}

// setupPresent reports whether the setup flag says the 8 bytes at offset 40
// hold a setup packet. 's' always does. The kernel writes 0 when it copied a
// SETUP packet, which only happens for control submissions, so 0 counts
// only for Control.
func setupPresent(flag byte, c TransferClass) bool {
	return flag == 's' || (flag == 0 && c == Control)
}

// applicable reports whether field name carries meaning for a packet of
// class c with the given setup flag.
func applicable(name string, c TransferClass, flagSetup byte) bool {
	switch name {
	case FieldSetup:
		return setupPresent(flagSetup, c)
	case FieldErrorCount, FieldNumDesc, FieldStartFrame:
		return c == Isochronous
	case FieldInterval:
		return c == Isochronous || c == Interrupt
	default:
		return true
	}
}
