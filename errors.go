package soundftp

import "github.com/gonzalop/soundftp/ftp"

// Error kinds returned by Session operations. They are the ftp package's
// kinds, so errors.Is works with either name.
var (
	ErrConnection     = ftp.ErrConnection
	ErrAuthentication = ftp.ErrAuthentication
	ErrNotConnected   = ftp.ErrNotConnected
	ErrNotFound       = ftp.ErrNotFound
	ErrTransfer       = ftp.ErrTransfer
	ErrTimeout        = ftp.ErrTimeout

	ErrProtocol        = ftp.ErrProtocol
	ErrInvalidArgument = ftp.ErrInvalidArgument
)

// CommandError is a server reply outside the expected range. It carries
// the command, the reply code and the raw server text.
type CommandError = ftp.ProtocolError
