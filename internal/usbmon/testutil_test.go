package usbmon

import (
	"encoding/binary"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/usbcmp/internal/core"
)

var testSetupBytes = []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}

// buildRecord returns a little-endian usbmon record with recognisable values
// in every header field.
func buildRecord(event byte, xfer uint8, flagSetup byte, payload []byte) []byte {
	b := make([]byte, HeaderLen+len(payload))
	le := binary.LittleEndian
	le.PutUint64(b[0:], 0x1122334455667788)
	b[8] = event
	b[9] = xfer
	b[10] = 0x81
	b[11] = 5
	le.PutUint16(b[12:], 3)
	b[14] = flagSetup
	b[15] = '<'
	le.PutUint64(b[16:], 1700000000)
	le.PutUint32(b[24:], 250000)
	le.PutUint32(b[28:], 0xffffff8d) // int32(-115)
	le.PutUint32(b[32:], 18)
	le.PutUint32(b[36:], uint32(len(payload)))
	copy(b[40:48], testSetupBytes)
	le.PutUint32(b[48:], 8)
	le.PutUint32(b[52:], 42)
	le.PutUint32(b[56:], 0x200)
	le.PutUint32(b[60:], 0)
	copy(b[HeaderLen:], payload)
	return b
}

func record(data []byte) core.Record {
	return core.Record{
		Info: gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, 250000000),
			CaptureLength: len(data),
			Length:        len(data),
		},
		Data: data,
	}
}
