package ports

// FrameSender accepts encoded frames for transmission.
type FrameSender interface {
	// Enqueue hands frame to the writer without blocking.
	// It returns false when the frame was not accepted (no live socket,
	// queue full, or writer stopped).
	Enqueue(frame []byte) bool
}
