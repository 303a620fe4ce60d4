package ftp

import (
	"fmt"
	"strconv"
	"strings"
)

// MakeDir creates a directory (MKD).
func (c *Client) MakeDir(path string) error {
	return c.simple("MKD", path)
}

// RemoveDir removes an empty directory (RMD).
func (c *Client) RemoveDir(path string) error {
	return c.simple("RMD", path)
}

// Delete removes a file (DELE).
func (c *Client) Delete(path string) error {
	return c.simple("DELE", path)
}

// ChangeDir changes the working directory (CWD). It does not report
// where the server ended up; use CurrentDir for that.
func (c *Client) ChangeDir(path string) error {
	return c.simple("CWD", path)
}

func (c *Client) simple(command, arg string) error {
	return c.do(command, func() error {
		_, err := c.expect2xx(command, arg)
		return err
	})
}

// CurrentDir returns the working directory reported by PWD.
func (c *Client) CurrentDir() (string, error) {
	var dir string
	err := c.do("PWD", func() error {
		reply, err := c.expect2xx("PWD")
		if err != nil {
			return err
		}
		dir, err = parsePWD(reply.Message)
		if err != nil {
			return &Error{Op: "PWD", Kind: ErrProtocol, Err: err}
		}
		return nil
	})
	return dir, err
}

// parsePWD extracts the path from `"/music/bgm" is current directory`.
// Per RFC 959 a quote inside the path is doubled.
func parsePWD(msg string) (string, error) {
	start := strings.IndexByte(msg, '"')
	if start == -1 {
		return "", fmt.Errorf("invalid PWD reply: %q", msg)
	}
	var b strings.Builder
	for i := start + 1; i < len(msg); i++ {
		if msg[i] != '"' {
			b.WriteByte(msg[i])
			continue
		}
		if i+1 < len(msg) && msg[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		if b.Len() == 0 {
			return "", fmt.Errorf("invalid PWD reply: %q", msg)
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("invalid PWD reply: %q", msg)
}

// Rename renames a file or directory (RNFR/RNTO).
func (c *Client) Rename(from, to string) error {
	return c.do("RNFR", func() error {
		if _, err := c.expectCode(350, "RNFR", from); err != nil {
			return err
		}
		_, err := c.expect2xx("RNTO", to)
		return err
	})
}

// Size returns the size in bytes of a file (SIZE, RFC 3659).
func (c *Client) Size(path string) (int64, error) {
	var size int64
	err := c.do("SIZE", func() error {
		if err := c.typeLocked("I"); err != nil {
			return err
		}
		reply, err := c.expectCode(213, "SIZE", path)
		if err != nil {
			return err
		}
		size, err = strconv.ParseInt(strings.TrimSpace(reply.Message), 10, 64)
		if err != nil || size < 0 {
			return &Error{Op: "SIZE", Kind: ErrProtocol, Err: fmt.Errorf("invalid SIZE reply: %q", reply.Message)}
		}
		return nil
	})
	return size, err
}
