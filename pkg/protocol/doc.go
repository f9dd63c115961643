// Package protocol implements the locomotive controller wire format.
//
// Every message on the wire is a single frame:
//
//	offset 0        START    = 0x7E
//	offset 1        ADDRESS  (locomotive id)
//	offset 2-3      LENGTH   (big-endian uint16, payload byte count)
//	offset 4..      PAYLOAD  (LENGTH bytes)
//	offset 4+LENGTH CHECKSUM (CRC-8, poly 0x31, over ADDRESS|LENGTH|PAYLOAD)
//
// Control commands always carry a one byte payload holding the target state.
// Frames with any other payload length are treated as opaque diagnostics.
//
// # Usage
//
// Encode a command for sending:
//
//	frame := protocol.Encode(3, 2, protocol.DefaultStateRange())
//
// Reassemble frames out of a fragmented byte stream:
//
//	r := protocol.NewReassembler(0)
//	r.Feed(chunk)
//	r.Drain(func(f protocol.Frame) {
//	    fmt.Println(f.String())
//	})
//
// The codec functions are pure and safe for concurrent use. A Reassembler is
// owned by a single reader and must not be shared between goroutines.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package protocol
