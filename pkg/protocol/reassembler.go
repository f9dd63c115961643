package protocol

import "errors"

// DefaultReassemblerCap is the initial receive buffer capacity.
const DefaultReassemblerCap = 2048

// DrainStats summarizes one Drain pass.
type DrainStats struct {
	// Frames is the number of frames emitted.
	Frames int
	// Discarded counts bytes dropped as noise (before START, or a START byte
	// that did not lead to a valid frame).
	Discarded int
	// ChecksumErrors counts START candidates rejected by the checksum.
	ChecksumErrors int
	// Oversized counts START candidates whose declared length was too large.
	Oversized int
}

// Reassembler extracts frames from an arbitrarily fragmented byte stream.
// It keeps a grow-only buffer with a logical size cursor; capacity doubles
// when a backlog does not fit.
type Reassembler struct {
	buf  []byte
	size int
}

// NewReassembler creates a reassembler with the given initial capacity.
// A non-positive capacity selects DefaultReassemblerCap.
func NewReassembler(initialCap int) *Reassembler {
	if initialCap <= 0 {
		initialCap = DefaultReassemblerCap
	}
	return &Reassembler{buf: make([]byte, initialCap)}
}

// Feed appends p to the receive buffer.
func (r *Reassembler) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	r.ensureCapacity(r.size + len(p))
	copy(r.buf[r.size:], p)
	r.size += len(p)
}

// Len returns the number of buffered, not yet consumed bytes.
func (r *Reassembler) Len() int { return r.size }

// Cap returns the current buffer capacity.
func (r *Reassembler) Cap() int { return len(r.buf) }

// Reset drops all buffered bytes. Capacity is kept.
func (r *Reassembler) Reset() { r.size = 0 }

// Drain emits every complete frame currently buffered, resynchronizing past
// noise one byte at a time. It returns when the buffer is exhausted or more
// data is needed to finish the candidate at offset 0.
func (r *Reassembler) Drain(emit func(Frame)) DrainStats {
	var stats DrainStats
	for {
		i := 0
		for i < r.size && r.buf[i] != StartByte {
			i++
		}
		if i >= r.size {
			stats.Discarded += r.size
			r.size = 0
			return stats
		}
		if i > 0 {
			stats.Discarded += i
			r.consume(i)
		}

		if r.size < MinFrameLen {
			return stats
		}

		n, _ := DeclaredLength(r.buf[:r.size])
		if n > MaxFrameLength {
			stats.Oversized++
			stats.Discarded++
			r.consume(1)
			continue
		}

		total := MinFrameLen + n
		if r.size < total {
			return stats
		}

		f, err := Decode(r.buf[:total])
		if err != nil {
			if errors.Is(err, ErrChecksumMismatch) {
				stats.ChecksumErrors++
			}
			stats.Discarded++
			r.consume(1)
			continue
		}

		stats.Frames++
		r.consume(total)
		if emit != nil {
			emit(f)
		}
	}
}

// consume slides the buffer left by n bytes.
func (r *Reassembler) consume(n int) {
	if n >= r.size {
		r.size = 0
		return
	}
	copy(r.buf, r.buf[n:r.size])
	r.size -= n
}

func (r *Reassembler) ensureCapacity(need int) {
	if need <= len(r.buf) {
		return
	}
	c := len(r.buf)
	if c == 0 {
		c = DefaultReassemblerCap
	}
	for c < need {
		c *= 2
	}
	nb := make([]byte, c)
	copy(nb, r.buf[:r.size])
	r.buf = nb
}
