package compare

// accumulator pins the first non-empty canonical value of a frame; every
// stream, including the one that set it, is compared against the pin.
type accumulator struct {
	pinned string
}

func (a *accumulator) mark(value string) string {
	diverged := a.pinned != "" && a.pinned != value
	if a.pinned == "" {
		a.pinned = value
	}
	if diverged {
		return MarkDiverged
	}
	return MarkSame
}
