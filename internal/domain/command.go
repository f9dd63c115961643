package domain

import "github.com/bft-labs/locolink/pkg/protocol"

// Command asks the controller to put one locomotive into one state.
type Command struct {
	Loco  int
	State int
}

// Clamp returns the command with both fields forced into range.
func (c Command) Clamp(r protocol.StateRange) Command {
	return Command{Loco: protocol.ClampLoco(c.Loco), State: r.Clamp(c.State)}
}

// Encode returns the wire frame for the command.
func (c Command) Encode(r protocol.StateRange) []byte {
	return protocol.Encode(c.Loco, c.State, r)
}
