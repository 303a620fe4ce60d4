package ftp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Error kinds. Every error returned by this package matches one of these
// with errors.Is, or is a *ProtocolError for a plain command failure. An
// operation abandoned by Close matches ErrNotConnected and may also match
// the kind of the failure it was cut short with.
var (
	// ErrConnection reports a DNS, TCP or greeting failure.
	ErrConnection = errors.New("connection failed")

	// ErrAuthentication reports a rejected USER or PASS.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotConnected reports an operation on a closed or unauthenticated client.
	ErrNotConnected = errors.New("not connected")

	// ErrNotFound reports a missing remote file or directory.
	ErrNotFound = errors.New("not found")

	// ErrTransfer reports a data connection failure or a failed transfer completion.
	ErrTransfer = errors.New("transfer failed")

	// ErrTimeout reports an expired network deadline.
	ErrTimeout = errors.New("timed out")

	// ErrProtocol reports a success reply the client could not make sense of,
	// such as a PWD reply without a quoted path.
	ErrProtocol = errors.New("unexpected reply")

	// ErrInvalidArgument reports a bad option or a command argument that
	// cannot be sent, such as a path containing a line break.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error is a classified failure. Kind is one of the sentinel errors above,
// Err is the underlying cause (often a *ProtocolError or a net.Error).
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ftp: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("ftp: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ProtocolError is a reply outside the expected range. It carries the
// raw server text for diagnostics.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "STOR")
	Command string

	// Response is the server message without the code
	Response string

	// Code is the numeric reply code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsTemporary returns true for 4xx replies.
func (e *ProtocolError) IsTemporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsPermanent returns true for 5xx replies.
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

// notFoundHints are the message fragments servers use when a 550 means
// "no such file" rather than "permission denied".
var notFoundHints = []string{
	"no such file",
	"not found",
	"does not exist",
	"doesn't exist",
	"cannot find",
	"not exist",
}

// IsNotFound reports whether the reply means the target does not exist.
func (e *ProtocolError) IsNotFound() bool {
	if e.Code != 550 && e.Code != 450 {
		return false
	}
	msg := strings.ToLower(e.Response)
	for _, hint := range notFoundHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	// RETR and SIZE only answer 550 for a missing file in practice.
	return e.Code == 550 && (e.Command == "RETR" || e.Command == "SIZE")
}

// isTimeout reports whether err is a network deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// wrap classifies err under op. Timeouts win over the fallback kind and
// not-found replies win over a plain command failure. Errors that are
// already classified pass through unchanged.
func wrap(op string, fallback, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if isTimeout(err) {
		return &Error{Op: op, Kind: ErrTimeout, Err: err}
	}
	var pe *ProtocolError
	if errors.As(err, &pe) && pe.IsNotFound() {
		return &Error{Op: op, Kind: ErrNotFound, Err: err}
	}
	if fallback == nil {
		return err
	}
	return &Error{Op: op, Kind: fallback, Err: err}
}
