package ftp

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reply is a complete server reply on the control channel.
type Reply struct {
	// Code is the three-digit reply code (e.g., 220, 550)
	Code int

	// Message is the text after the code, lines joined with "\n"
	Message string

	// Lines holds every raw line of the reply
	Lines []string
}

// Preliminary reports a 1xx reply (data transfer about to start).
func (r *Reply) Preliminary() bool { return r.Code >= 100 && r.Code < 200 }

// Success reports a 2xx reply.
func (r *Reply) Success() bool { return r.Code >= 200 && r.Code < 300 }

// Intermediate reports a 3xx reply (more information needed).
func (r *Reply) Intermediate() bool { return r.Code >= 300 && r.Code < 400 }

// String returns the raw reply text.
func (r *Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

// readReply reads one reply from the control channel.
//
// A single-line reply is "220 Ready". A multi-line reply opens with
// "220-", may contain arbitrary lines (RFC 2389 feature lines start with a
// space) and closes with a line starting "220 ".
func readReply(r *bufio.Reader) (*Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) < 3 {
		return nil, fmt.Errorf("malformed reply line: %q", line)
	}

	code, err := strconv.Atoi(line[:3])
	if err != nil || code < 100 || code > 599 {
		return nil, fmt.Errorf("malformed reply code: %q", line)
	}

	reply := &Reply{Code: code, Lines: []string{line}}
	if len(line) == 3 {
		return reply, nil
	}

	switch line[3] {
	case ' ':
		reply.Message = line[4:]
		return reply, nil
	case '-':
	default:
		return nil, fmt.Errorf("malformed reply separator: %q", line)
	}

	terminator := line[:3] + " "
	msg := []string{line[4:]}
	for {
		next, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("truncated multi-line reply: %w", err)
		}
		reply.Lines = append(reply.Lines, next)

		if next == line[:3] {
			break
		}
		if strings.HasPrefix(next, terminator) {
			msg = append(msg, strings.TrimPrefix(next, terminator))
			break
		}
		// "211-" continuation lines and free text both carry message content.
		msg = append(msg, strings.TrimPrefix(next, line[:3]+"-"))
	}
	reply.Message = strings.Join(msg, "\n")
	return reply, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// cmd writes one command line and reads its reply. The caller must hold c.mu.
// Network failures are classified; the reply code is not inspected.
func (c *Client) cmd(command string, args ...string) (*Reply, error) {
	line := command
	if len(args) > 0 {
		line = command + " " + strings.Join(args, " ")
	}
	if strings.ContainsAny(line, "\r\n") {
		return nil, &Error{Op: command, Kind: ErrInvalidArgument, Err: errors.New("argument contains a line break")}
	}

	if command == "PASS" {
		c.logger.Debug("ftp command", "cmd", "PASS ****")
	} else {
		c.logger.Debug("ftp command", "cmd", line)
	}

	if err := c.conn.SetWriteDeadline(c.deadline(c.timeout)); err != nil {
		return nil, wrap(command, ErrConnection, err)
	}
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return nil, wrap(command, ErrConnection, err)
	}

	reply, err := c.readReply(c.timeout, command)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// readReply reads the next reply with the given deadline.
func (c *Client) readReply(timeout time.Duration, op string) (*Reply, error) {
	if err := c.conn.SetReadDeadline(c.deadline(timeout)); err != nil {
		return nil, wrap(op, ErrConnection, err)
	}
	reply, err := readReply(c.reader)
	if err != nil {
		return nil, wrap(op, ErrConnection, err)
	}
	c.logger.Debug("ftp reply", "code", reply.Code, "message", reply.Message)
	return reply, nil
}

// expect2xx sends a command and requires a 2xx reply.
func (c *Client) expect2xx(command string, args ...string) (*Reply, error) {
	reply, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if !reply.Success() {
		return reply, wrap(command, nil, replyError(command, reply))
	}
	return reply, nil
}

// expectCode sends a command and requires exactly code.
func (c *Client) expectCode(code int, command string, args ...string) (*Reply, error) {
	reply, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if reply.Code != code {
		return reply, wrap(command, nil, replyError(command, reply))
	}
	return reply, nil
}

func replyError(command string, reply *Reply) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: reply.Message,
		Code:     reply.Code,
	}
}

// deadline turns a timeout into an absolute deadline; zero disables it.
func (c *Client) deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
