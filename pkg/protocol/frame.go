package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Wire constants.
const (
	// StartByte marks the beginning of every frame.
	StartByte byte = 0x7E

	// HeaderLen is START + ADDRESS + LENGTH.
	HeaderLen = 4

	// MinFrameLen is the size of a frame with an empty payload
	// (header plus checksum).
	MinFrameLen = HeaderLen + 1

	// MaxFrameLength is the largest payload length that is trusted.
	// Larger declared lengths are treated as noise.
	MaxFrameLength = 4096

	// ControlPayloadLen is the payload length of a control command.
	ControlPayloadLen = 1
)

// Locomotive address range accepted by the controller.
const (
	LocoMin = 1
	LocoMax = 8
)

// Default state range. Older firmware revisions only accept 1..5; select that
// with a custom StateRange.
const (
	DefaultStateMin = 1
	DefaultStateMax = 6
)

var (
	ErrShortFrame       = errors.New("protocol: short frame")
	ErrBadStart         = errors.New("protocol: missing start byte")
	ErrFrameTooLarge    = errors.New("protocol: declared length exceeds maximum")
	ErrLengthMismatch   = errors.New("protocol: window does not match declared length")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
)

// StateRange is the inclusive range of signal states the peer understands.
type StateRange struct {
	Min int
	Max int
}

// DefaultStateRange returns the range used when none is configured.
func DefaultStateRange() StateRange {
	return StateRange{Min: DefaultStateMin, Max: DefaultStateMax}
}

// Valid reports whether the range is non-empty and fits in one byte.
func (r StateRange) Valid() bool {
	return r.Min >= 0 && r.Max <= 0xFF && r.Min <= r.Max
}

// Clamp forces state into the range.
func (r StateRange) Clamp(state int) int {
	return clamp(state, r.Min, r.Max)
}

// Contains reports whether state lies inside the range.
func (r StateRange) Contains(state int) bool {
	return state >= r.Min && state <= r.Max
}

// ClampLoco forces a locomotive id into [LocoMin, LocoMax].
func ClampLoco(loco int) int {
	return clamp(loco, LocoMin, LocoMax)
}

// ValidLoco reports whether loco is an addressable locomotive.
func ValidLoco(loco int) bool {
	return loco >= LocoMin && loco <= LocoMax
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Encode builds a control frame for loco and state. Both values are clamped
// before encoding; the peer has no way to report a rejected command.
func Encode(loco, state int, r StateRange) []byte {
	l := ClampLoco(loco)
	st := r.Clamp(state)

	frame := make([]byte, MinFrameLen+ControlPayloadLen)
	frame[0] = StartByte
	frame[1] = byte(l)
	binary.BigEndian.PutUint16(frame[2:4], ControlPayloadLen)
	frame[4] = byte(st)
	frame[5] = Checksum(frame[1:5])
	return frame
}

// Frame is one checksum-verified unit of the wire protocol.
type Frame struct {
	Address byte
	Length  uint16
	Payload []byte
}

// TotalLen returns the on-wire size of the frame.
func (f Frame) TotalLen() int {
	return MinFrameLen + int(f.Length)
}

// IsControl reports whether the frame carries a single state byte.
func (f Frame) IsControl() bool {
	return f.Length == ControlPayloadLen && len(f.Payload) == ControlPayloadLen
}

// State returns the state byte of a control frame.
func (f Frame) State() (int, bool) {
	if !f.IsControl() {
		return 0, false
	}
	return int(f.Payload[0]), true
}

// String renders the frame as a single log line without trailing newline.
func (f Frame) String() string {
	if st, ok := f.State(); ok {
		return fmt.Sprintf("cmd=0x%02X loco=%d state=%d", f.Address, f.Address, st)
	}
	return fmt.Sprintf("cmd=0x%02X len=%d data=%s", f.Address, f.Length, Hex(f.Payload))
}

// Bytes encodes the frame back to its wire form.
func (f Frame) Bytes() []byte {
	out := make([]byte, MinFrameLen+len(f.Payload))
	out[0] = StartByte
	out[1] = f.Address
	binary.BigEndian.PutUint16(out[2:4], uint16(len(f.Payload)))
	copy(out[4:], f.Payload)
	out[len(out)-1] = Checksum(out[1 : len(out)-1])
	return out
}

// DeclaredLength reads the LENGTH field of a window starting at START.
func DeclaredLength(window []byte) (int, error) {
	if len(window) < HeaderLen {
		return 0, ErrShortFrame
	}
	return int(binary.BigEndian.Uint16(window[2:4])), nil
}

// Decode parses a window that starts at START and spans exactly one frame.
// ErrChecksumMismatch means the START byte was most likely a false match;
// the caller should skip one byte and rescan.
func Decode(window []byte) (Frame, error) {
	if len(window) < MinFrameLen {
		return Frame{}, ErrShortFrame
	}
	if window[0] != StartByte {
		return Frame{}, ErrBadStart
	}
	n, _ := DeclaredLength(window)
	if n > MaxFrameLength {
		return Frame{}, ErrFrameTooLarge
	}
	total := MinFrameLen + n
	if len(window) != total {
		return Frame{}, ErrLengthMismatch
	}
	if Checksum(window[1:total-1]) != window[total-1] {
		return Frame{}, ErrChecksumMismatch
	}

	payload := make([]byte, n)
	copy(payload, window[HeaderLen:HeaderLen+n])
	return Frame{
		Address: window[1],
		Length:  uint16(n),
		Payload: payload,
	}, nil
}

// Hex renders b as space separated upper-case byte pairs ("7E 01 00 01 5E").
func Hex(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
