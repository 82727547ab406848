package usbmon

// encodedFields is the write-back set of Encode. The setup region (and the
// error_count/numdesc counters aliasing it) is deliberately absent: edits to
// bytes 40..47 never reach the encoded record and the region is emitted as
// zeros. Downstream tooling depends on this narrow scope, so it is kept as
// is rather than widened to every field.
var encodedFields = []string{
	FieldURB,
	FieldEventType,
	FieldXferType,
	FieldEpNum,
	FieldDevNum,
	FieldBusNum,
	FieldFlagSetup,
	FieldFlagData,
	FieldTsSec,
	FieldTsUsec,
	FieldStatus,
	FieldLength,
	FieldLenCap,
	FieldInterval,
	FieldStartFrame,
	FieldXferFlags,
	FieldNDesc,
}

// Encode re-serializes the packet: a zeroed 64-byte header filled with the
// fields of the write-back set, followed by the payload verbatim.
// Conditional fields that do not apply to the packet are written as zero.
func (p *PacketView) Encode() ([]byte, error) {
	out := make([]byte, HeaderLen, HeaderLen+p.DataLen())
	for _, name := range encodedFields {
		d, err := DescriptorOf(name)
		if err != nil {
			return nil, err
		}
		v, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		if !v.Applicable() {
			continue
		}
		if err := pack(out, d, v, p.order); err != nil {
			return nil, err
		}
	}
	return append(out, p.buf[HeaderLen:]...), nil
}
