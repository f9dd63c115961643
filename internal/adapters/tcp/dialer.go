package tcp

import (
	"context"
	"net"
	"time"

	"github.com/bft-labs/locolink/internal/ports"
)

// Dialer implements ports.Dialer over TCP with Nagle's algorithm disabled.
// Control frames are six bytes and must not sit in the kernel waiting for
// more data.
type Dialer struct {
	dialer net.Dialer
	logger ports.Logger
}

// NewDialer creates a TCP dialer. keepAlive <= 0 leaves the OS default.
func NewDialer(keepAlive time.Duration, logger ports.Logger) *Dialer {
	return &Dialer{
		dialer: net.Dialer{KeepAlive: keepAlive},
		logger: logger,
	}
}

// DialContext connects to addr. The network argument must be a TCP network.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			d.logger.Warn("set TCP_NODELAY failed", ports.String("addr", addr), ports.Err(err))
		}
	}
	return conn, nil
}

var _ ports.Dialer = (*Dialer)(nil)
