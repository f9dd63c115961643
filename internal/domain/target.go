package domain

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Target is the controller address.
type Target struct {
	Host string
	Port uint16
}

// NewTarget validates host and port and returns the target.
func NewTarget(host string, port int) (Target, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Target{}, errors.Wrap(ErrInvalidTarget, "empty host")
	}
	if port < 1 || port > 65535 {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "port %d out of range", port)
	}
	return Target{Host: host, Port: uint16(port)}, nil
}

// Valid reports whether the target can be dialed.
func (t Target) Valid() bool {
	return t.Host != "" && t.Port != 0
}

// Addr returns the target in host:port form.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

func (t Target) String() string {
	return t.Host + ":" + strconv.Itoa(int(t.Port))
}
