package ftp

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/gonzalop/soundftp/internal/ratelimit"
)

const (
	// DefaultTimeout bounds every control channel read and write.
	DefaultTimeout = 30 * time.Second

	// DefaultTransferTimeout bounds each read or write on a data connection
	// and the wait for the transfer completion reply.
	DefaultTransferTimeout = 5 * time.Minute
)

// Client is one FTP control connection. Its methods are safe for
// concurrent use; commands are serialized so that every command is
// followed by its own reply, and a transfer keeps the channel until its
// completion reply has been read.
type Client struct {
	// conn is the control channel
	conn net.Conn

	// reader buffers the control channel
	reader *bufio.Reader

	// host of the control connection, used for passive data connections
	host string

	timeout         time.Duration
	transferTimeout time.Duration

	logger *slog.Logger
	dialer *net.Dialer

	// activeMode selects PORT/EPRT instead of EPSV/PASV
	activeMode bool

	// disableEPSV skips EPSV; also set after a server answers 502 to it
	disableEPSV bool

	// limiter throttles data connections; nil means unlimited
	limiter *ratelimit.Limiter

	// features caches the FEAT reply
	features map[string]string

	// currentType avoids redundant TYPE commands
	currentType string

	// now is the reference clock for listings without a year
	now func() time.Time

	// mu serializes command/reply pairs and whole transfers
	mu sync.Mutex

	// dataMu guards data, the data connection of the running transfer.
	// Close shuts it down so an abandoned transfer fails at once.
	dataMu sync.Mutex
	data   *pendingData

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the server at addr ("host:port") and reads the
// greeting. The returned client still has to Login.
func Dial(addr string, options ...Option) (*Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, &Error{Op: "dial", Kind: ErrConnection, Err: err}
	}

	c := &Client{
		host:            host,
		timeout:         DefaultTimeout,
		transferTimeout: DefaultTransferTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		dialer:          &net.Dialer{},
		now:             time.Now,
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, &Error{Op: "dial", Kind: ErrInvalidArgument, Err: err}
		}
	}
	// Work on a copy so a caller's dialer is left as it was.
	d := *c.dialer
	if d.Timeout == 0 {
		d.Timeout = c.timeout
	}
	c.dialer = &d

	c.logger.Debug("connecting to ftp server", "addr", addr)
	conn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, wrap("dial", ErrConnection, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)

	reply, err := c.readReply(c.timeout, "greeting")
	if err != nil {
		_ = conn.Close()
		return nil, wrap("greeting", ErrConnection, err)
	}
	c.logger.Debug("ftp greeting", "code", reply.Code, "message", reply.Message)

	// 120 means "ready in a few minutes"; the real greeting follows.
	if reply.Code == 120 {
		reply, err = c.readReply(c.timeout, "greeting")
		if err != nil {
			_ = conn.Close()
			return nil, wrap("greeting", ErrConnection, err)
		}
	}
	if reply.Code != 220 {
		_ = conn.Close()
		return nil, &Error{Op: "greeting", Kind: ErrConnection, Err: replyError("CONNECT", reply)}
	}

	return c, nil
}

// Login authenticates with USER and, if asked for, PASS.
func (c *Client) Login(username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return &Error{Op: "login", Kind: ErrNotConnected}
	}

	reply, err := c.cmd("USER", username)
	if err != nil {
		return err
	}
	switch reply.Code {
	case 230:
		return nil
	case 331, 332:
	default:
		return &Error{Op: "login", Kind: ErrAuthentication, Err: replyError("USER", reply)}
	}

	reply, err = c.cmd("PASS", password)
	if err != nil {
		return err
	}
	if reply.Code != 230 && reply.Code != 202 {
		return &Error{Op: "login", Kind: ErrAuthentication, Err: replyError("PASS", reply)}
	}
	return nil
}

// Quit sends QUIT and closes the connection. The QUIT reply is not
// required; a dead connection still gets closed.
func (c *Client) Quit() error {
	if c.closed.Load() {
		return nil
	}

	var result error
	if c.mu.TryLock() {
		if _, err := c.cmd("QUIT"); err != nil {
			result = multierror.Append(result, err)
		}
		c.mu.Unlock()
	}
	if err := c.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// Close releases the control connection, and the data connection of a
// running transfer, without sending QUIT. It may be called from another
// goroutine to abandon an operation in flight, and any number of times;
// the sockets are closed once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		c.dataMu.Lock()
		if c.data != nil {
			c.data.close()
		}
		c.dataMu.Unlock()
		c.logger.Debug("ftp connection closed", "host", c.host)
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Noop sends NOOP.
func (c *Client) Noop() error {
	return c.do("NOOP", func() error {
		_, err := c.expect2xx("NOOP")
		return err
	})
}

// Quote sends a raw command and returns whatever the server replies.
func (c *Client) Quote(command string, args ...string) (*Reply, error) {
	var reply *Reply
	err := c.do(command, func() error {
		var err error
		reply, err = c.cmd(command, args...)
		return err
	})
	return reply, err
}

// Features returns the FEAT reply as a map of upper-case feature names to
// parameters. The result is cached. A server without FEAT yields an empty map.
func (c *Client) Features() (map[string]string, error) {
	var feats map[string]string
	err := c.do("FEAT", func() error {
		var err error
		feats, err = c.featuresLocked()
		return err
	})
	return feats, err
}

func (c *Client) featuresLocked() (map[string]string, error) {
	if c.features != nil {
		return c.features, nil
	}
	reply, err := c.cmd("FEAT")
	if err != nil {
		return nil, err
	}
	if reply.Code != 211 {
		c.features = map[string]string{}
		return c.features, nil
	}
	c.features = parseFeatures(reply.Lines)
	return c.features, nil
}

// parseFeatures reads the body of a FEAT reply. Both RFC 2389
// (" MLST size*;modify*;") and "211-MLST ..." continuation styles occur.
func parseFeatures(lines []string) map[string]string {
	feats := make(map[string]string)
	if len(lines) < 2 {
		return feats
	}
	for _, line := range lines[1 : len(lines)-1] {
		if strings.HasPrefix(line, "211-") {
			line = line[4:]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, params, _ := strings.Cut(line, " ")
		feats[strings.ToUpper(name)] = params
	}
	return feats
}

// Type sets the representation type ("I" or "A"). Repeated calls with
// the same type are not sent again.
func (c *Client) Type(t string) error {
	return c.do("TYPE", func() error {
		return c.typeLocked(t)
	})
}

func (c *Client) typeLocked(t string) error {
	if c.currentType == t {
		return nil
	}
	if _, err := c.expect2xx("TYPE", t); err != nil {
		return err
	}
	c.currentType = t
	return nil
}

// do runs fn while holding the channel, after checking the connection is open.
func (c *Client) do(op string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return &Error{Op: op, Kind: ErrNotConnected}
	}
	err := fn()
	if err != nil && c.closed.Load() && !errors.Is(err, ErrTimeout) {
		// The connection was torn down underneath us.
		return &Error{Op: op, Kind: ErrNotConnected, Err: err}
	}
	return err
}
