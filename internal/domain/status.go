package domain

// Status is the connection status reported to observers.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// Termination classifies how a session ended. Every session ends with
// exactly one of these.
type Termination int

const (
	// TerminationManual means a local disconnect or shutdown was requested.
	TerminationManual Termination = iota + 1
	// TerminationGraceful means the peer closed the stream.
	TerminationGraceful
	// TerminationAbnormal means the dial or an I/O call failed.
	TerminationAbnormal
)

func (t Termination) String() string {
	switch t {
	case TerminationManual:
		return "manual"
	case TerminationGraceful:
		return "graceful"
	case TerminationAbnormal:
		return "abnormal"
	default:
		return "unknown"
	}
}

// Reason is the word used in the disconnect data line.
func (t Termination) Reason() string {
	switch t {
	case TerminationGraceful:
		return "normal"
	case TerminationManual:
		return "manual"
	default:
		return "error"
	}
}
