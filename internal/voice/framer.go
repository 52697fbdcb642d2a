package voice

import "encoding/binary"

// FrameAccumulator reassembles arbitrarily sized inbound PCM16LE byte chunks
// into fixed-length sample windows for the activity gate. Bytes are consumed
// in arrival order; a trailing partial window is carried until completed by
// later chunks. Not safe for concurrent use: the ingest loop is the single
// producer.
type FrameAccumulator struct {
	windowSamples int
	pending       []byte
}

func NewFrameAccumulator(windowSamples int) *FrameAccumulator {
	if windowSamples <= 0 {
		windowSamples = 320
	}
	return &FrameAccumulator{windowSamples: windowSamples}
}

// Push appends chunk and returns every complete window it unlocked, in order.
// Each returned window has exactly windowSamples samples.
func (f *FrameAccumulator) Push(chunk []byte) [][]int16 {
	if len(chunk) == 0 {
		return nil
	}
	f.pending = append(f.pending, chunk...)

	windowBytes := f.windowSamples * 2
	var windows [][]int16
	for len(f.pending) >= windowBytes {
		w := make([]int16, f.windowSamples)
		for i := range w {
			w[i] = int16(binary.LittleEndian.Uint16(f.pending[i*2:]))
		}
		windows = append(windows, w)
		f.pending = f.pending[windowBytes:]
	}
	if len(f.pending) == 0 {
		// Drop the backing array so a long session does not pin old chunks.
		f.pending = nil
	}
	return windows
}

// PendingSamples reports how many whole samples are waiting for the next
// window boundary.
func (f *FrameAccumulator) PendingSamples() int {
	return len(f.pending) / 2
}

// Reset discards any carried partial window.
func (f *FrameAccumulator) Reset() {
	f.pending = nil
}
