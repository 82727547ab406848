package usbmon

import "encoding/hex"

// HexDump renders the first n bytes of b as space separated lowercase hex
// pairs. The output is a pure function of the bytes, so equal payloads give
// equal strings. Empty input yields "".
func HexDump(b []byte, n int) string {
	if n < 0 {
		n = 0
	}
	if n > len(b) {
		n = len(b)
	}
	if n == 0 {
		return ""
	}
	out := make([]byte, 0, n*3-1)
	var pair [2]byte
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ' ')
		}
		hex.Encode(pair[:], b[i:i+1])
		out = append(out, pair[:]...)
	}
	return string(out)
}
