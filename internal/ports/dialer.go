package ports

import (
	"context"
	"net"
)

// Dialer opens a stream connection to addr.
// The standard *net.Dialer satisfies this interface. Implementations must
// return promptly once ctx is cancelled; the session relies on that to
// interrupt an in-flight connect.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}
