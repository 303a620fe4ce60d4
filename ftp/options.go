package ftp

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gonzalop/soundftp/internal/ratelimit"
)

// Option configures a Client in Dial.
type Option func(*Client) error

// WithTimeout sets the deadline for dialing and for every control channel
// read and write. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return errors.New("ftp: negative timeout")
		}
		c.timeout = timeout
		return nil
	}
}

// WithTransferTimeout sets the idle deadline for data connections and the
// wait for the completion reply after a transfer. Zero disables it.
func WithTransferTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return errors.New("ftp: negative transfer timeout")
		}
		c.transferTimeout = timeout
		return nil
	}
}

// WithLogger logs every command and reply at debug level.
// PASS arguments are masked.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	client, _ := ftp.Dial("192.168.1.20:21", ftp.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithDialer sets the dialer for the control and passive data connections.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Client) error {
		if dialer == nil {
			return errors.New("ftp: nil dialer")
		}
		c.dialer = dialer
		return nil
	}
}

// WithActiveMode makes the client listen for data connections and send
// PORT (or EPRT for IPv6) instead of using passive mode. Passive mode is
// the default because it works through NAT and client-side firewalls.
func WithActiveMode() Option {
	return func(c *Client) error {
		c.activeMode = true
		return nil
	}
}

// WithDisableEPSV goes straight to PASV for passive data connections.
func WithDisableEPSV() Option {
	return func(c *Client) error {
		c.disableEPSV = true
		return nil
	}
}

// WithBandwidthLimit caps data connection throughput in bytes per second.
// Zero or a negative value means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(c *Client) error {
		c.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}
