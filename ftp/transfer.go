package ftp

import (
	"errors"
	"io"
	"net"

	"github.com/hashicorp/go-multierror"
)

// Retrieve downloads path in binary mode and copies it to w. It returns
// the number of bytes received. Bytes already written to w when an error
// is returned must be treated as garbage.
//
// Example:
//
//	var buf bytes.Buffer
//	n, err := client.Retrieve("bgm/title.ogg", &buf)
func (c *Client) Retrieve(path string, w io.Writer) (int64, error) {
	var n int64
	err := c.do("RETR", func() error {
		if err := c.typeLocked("I"); err != nil {
			return err
		}
		return c.transfer("RETR", path, func(conn net.Conn) error {
			var err error
			n, err = io.Copy(w, conn)
			return err
		})
	})
	return n, err
}

// Store uploads r to path in binary mode, replacing any existing file.
// It returns the number of bytes sent.
//
// Example:
//
//	f, err := os.Open("title.ogg")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	_, err = client.Store("bgm/title.ogg", f)
func (c *Client) Store(path string, r io.Reader) (int64, error) {
	var n int64
	err := c.do("STOR", func() error {
		if err := c.typeLocked("I"); err != nil {
			return err
		}
		return c.transfer("STOR", path, func(conn net.Conn) error {
			var err error
			n, err = io.Copy(conn, r)
			return err
		})
	})
	return n, err
}

// transfer runs one data connection command: negotiate the data
// connection, send command, move the data with fn, close the data
// connection and consume the completion reply. The control channel is not
// released before the completion reply has been read, so a later command
// can never pick up this transfer's reply. The caller must hold c.mu.
func (c *Client) transfer(command, arg string, fn func(net.Conn) error) error {
	pending, err := c.openData()
	if err != nil {
		return err
	}
	if err := c.trackData(pending); err != nil {
		return err
	}
	defer func() { _ = c.trackData(nil) }()

	args := []string{}
	if arg != "" {
		args = append(args, arg)
	}
	reply, err := c.cmd(command, args...)
	if err != nil {
		pending.close()
		return err
	}
	if !reply.Preliminary() && !reply.Success() {
		pending.close()
		return wrap(command, nil, replyError(command, reply))
	}

	var result *multierror.Error

	conn, err := pending.establish(c.transferTimeout)
	if err != nil {
		result = multierror.Append(result, err)
	} else {
		dc := newDataConn(conn, c.transferTimeout, c.limiter)
		if err := fn(dc); err != nil {
			result = multierror.Append(result, err)
		}
		// A failed close can mean the upload never fully reached the server.
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}

	// A 2xx reply to the command itself means the server already finished.
	if reply.Preliminary() {
		final, err := c.readReply(c.transferTimeout, command)
		switch {
		case err != nil:
			result = multierror.Append(result, err)
		case !final.Success():
			result = multierror.Append(result, replyError(command, final))
		default:
			c.logger.Debug("ftp transfer complete", "cmd", command, "code", final.Code)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		kind := ErrTransfer
		if isTimeout(err) {
			kind = ErrTimeout
		}
		return &Error{Op: command, Kind: kind, Err: err}
	}
	return nil
}

// trackData records the data connection of the running transfer so Close
// can reach it. A client closed in the meantime closes p right away.
func (c *Client) trackData(p *pendingData) error {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	if p != nil && c.closed.Load() {
		p.close()
		return &Error{Op: "data connection", Kind: ErrNotConnected}
	}
	c.data = p
	return nil
}
