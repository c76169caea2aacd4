// Package netcheck answers "is something listening on this port" with a
// short, read-only TCP dial.
package netcheck

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single dial.
const DefaultTimeout = 500 * time.Millisecond

// Checker implements deployment.PortChecker.
type Checker struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Checker. A zero timeout uses DefaultTimeout; a nil logger
// uses slog.Default().
func New(timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{timeout: timeout, logger: logger}
}

// IsPortInUse reports whether a TCP connection to host:port succeeds.
// Refused connections and timeouts mean free. Any other network error also
// reports free, and is logged.
func (c *Checker) IsPortInUse(ctx context.Context, host string, port int) bool {
	target := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err == nil {
		_ = conn.Close()
		return true
	}
	if !expectedDialError(err) {
		c.logger.Warn("port check failed, assuming free", "address", target, "error", err)
	} else {
		c.logger.Debug("port free", "address", target, "error", err)
	}
	return false
}

// Dial reports whether host:port accepts connections within the timeout,
// returning the dial error otherwise.
func (c *Checker) Dial(ctx context.Context, host string, port int) error {
	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

func expectedDialError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
