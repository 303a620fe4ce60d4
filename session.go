package soundftp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gonzalop/soundftp/ftp"
)

// DefaultPort is used when Connect is given a host without a port.
const DefaultPort = "21"

// State is the connection state of a Session.
type State int

// Session states. Connected means the server has greeted us but login
// has not completed.
const (
	Disconnected State = iota
	Connected
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is a synchronous FTP session. Operations are serialized: a
// second caller waits until the first one has finished, including the
// completion reply of a transfer. Every public operation records exactly
// one entry in the session's OperationLog and reports failures as errors
// matching one of the Err* kinds.
type Session struct {
	// opMu serializes public operations
	opMu sync.Mutex

	// mu guards the fields below. Disconnect takes it without opMu to
	// tear down an operation in flight.
	mu     sync.Mutex
	client *ftp.Client
	state  State
	addr   string
	user   string
	cwd    string

	// disconnects counts Disconnect calls, so a Connect that was dialing
	// when one ran can tell it has been cancelled.
	disconnects uint64

	log        *OperationLog
	logger     *slog.Logger
	metrics    MetricsCollector
	progress   ProgressFunc
	engineOpts []ftp.Option
}

// New returns a disconnected session.
func New(opts ...Option) *Session {
	s := &Session{
		cwd:    "/",
		log:    NewOperationLog(),
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the "host:port" of the current or last connection.
func (s *Session) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// User returns the user name of the current or last connection.
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// WorkingDirectory returns the last directory the server confirmed.
func (s *Session) WorkingDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Log returns the session's operation log.
func (s *Session) Log() *OperationLog {
	return s.log
}

// Connect opens the control connection to host and logs in. host is
// "host", "host:port" or "ftp://host[:port]"; the port defaults to 21. An
// existing connection is closed first. On failure the session is left
// Disconnected.
func (s *Session) Connect(host, username, password string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	start := time.Now()
	err := s.connect(host, username, password)
	return s.finish("connect", fmt.Sprintf("Connect to %s as %q", host, username), start, err)
}

func (s *Session) connect(host, username, password string) error {
	addr, err := normalizeAddr(host)
	if err != nil {
		return &ftp.Error{Op: "connect", Kind: ErrConnection, Err: err}
	}

	s.mu.Lock()
	old := s.client
	s.client, s.state, s.cwd = nil, Disconnected, "/"
	generation := s.disconnects
	s.mu.Unlock()
	if old != nil {
		_ = old.Quit()
	}

	c, err := ftp.Dial(addr, s.engineOpts...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.disconnects != generation {
		s.mu.Unlock()
		_ = c.Close()
		return &ftp.Error{Op: "connect", Kind: ErrNotConnected}
	}
	s.client, s.state, s.addr, s.user = c, Connected, addr, username
	s.mu.Unlock()

	if err := c.Login(username, password); err != nil {
		s.drop(c)
		return err
	}

	// The initial directory is whatever the server puts us in.
	cwd, err := c.CurrentDir()
	if err != nil {
		if broken(c, err) {
			s.drop(c)
			return err
		}
		s.logger.Debug("PWD after login failed, assuming /", "error", err)
		cwd = "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != c {
		// Disconnect ran while we were logging in.
		return &ftp.Error{Op: "connect", Kind: ErrNotConnected}
	}
	s.state, s.cwd = Authenticated, cwd
	return nil
}

// normalizeAddr turns the host forms Connect accepts into "host:port".
func normalizeAddr(host string) (string, error) {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "ftp://")
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return "", errors.New("empty host")
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), DefaultPort), nil
}

// Disconnect closes the connection. When no operation is running it
// sends QUIT first; otherwise the socket is closed underneath the
// running operation, which then fails with ErrNotConnected. Calling
// Disconnect on a disconnected session does nothing and returns nil.
func (s *Session) Disconnect() error {
	start := time.Now()
	idle := s.opMu.TryLock()
	if idle {
		defer s.opMu.Unlock()
	}

	s.mu.Lock()
	c := s.client
	s.client, s.state = nil, Disconnected
	s.disconnects++
	s.mu.Unlock()

	if c == nil {
		return s.finish("disconnect", "Disconnect (not connected)", start, nil)
	}
	if idle {
		if err := c.Quit(); err != nil {
			s.logger.Debug("QUIT failed", "error", err)
		}
	}
	// Close after Quit only returns the cached result.
	err := c.Close()
	what := "Disconnect from " + s.Addr()
	if !idle {
		what += " (abandoning the running operation)"
	}
	return s.finish("disconnect", what, start, err)
}

// MakeDirectory creates name (MKD).
func (s *Session) MakeDirectory(name string) error {
	return s.run("mkdir", fmt.Sprintf("Create directory %q", name), func(c *ftp.Client) error {
		return c.MakeDir(name)
	})
}

// DeleteDirectory removes the empty directory name (RMD). ".." always
// succeeds without contacting the server, connected or not.
func (s *Session) DeleteDirectory(name string) error {
	if name == ".." {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return s.finish("rmdir", `Delete directory ".." skipped`, time.Now(), nil)
	}
	return s.run("rmdir", fmt.Sprintf("Delete directory %q", name), func(c *ftp.Client) error {
		return c.RemoveDir(name)
	})
}

// DeleteFile removes name (DELE).
func (s *Session) DeleteFile(name string) error {
	return s.run("delete", fmt.Sprintf("Delete file %q", name), func(c *ftp.Client) error {
		return c.Delete(name)
	})
}

// Rename renames a file or directory (RNFR/RNTO).
func (s *Session) Rename(from, to string) error {
	return s.run("rename", fmt.Sprintf("Rename %q to %q", from, to), func(c *ftp.Client) error {
		return c.Rename(from, to)
	})
}

// FileSize returns the size of a remote file (SIZE).
func (s *Session) FileSize(name string) (int64, error) {
	var size int64
	err := s.run("size", fmt.Sprintf("Size of %q", name), func(c *ftp.Client) error {
		var err error
		size, err = c.Size(name)
		return err
	})
	return size, err
}

// ChangeWorkingDirectory sends CWD and then PWD, and takes the path the
// server reports as the new working directory. If either command fails
// the working directory keeps its previous value.
func (s *Session) ChangeWorkingDirectory(path string) error {
	return s.run("cwd", fmt.Sprintf("Change directory to %q", path), func(c *ftp.Client) error {
		if err := c.ChangeDir(path); err != nil {
			return err
		}
		dir, err := c.CurrentDir()
		if err != nil {
			// Put the server back where the session thinks it is.
			if !c.Closed() {
				_ = c.ChangeDir(s.WorkingDirectory())
			}
			return err
		}
		s.mu.Lock()
		if s.client == c {
			s.cwd = dir
		}
		s.mu.Unlock()
		return nil
	})
}

// Download returns the whole content of the remote file name. On any
// failure it returns nil and never a partial result.
func (s *Session) Download(name string) ([]byte, error) {
	var data []byte
	err := s.run("download", fmt.Sprintf("Download %q", name), func(c *ftp.Client) error {
		var buf bytes.Buffer
		start := time.Now()
		n, err := c.Retrieve(name, s.progressWriter(name, &buf))
		if err != nil {
			return err
		}
		s.recordTransfer("download", n, time.Since(start))
		data = buf.Bytes()
		if data == nil {
			data = []byte{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// UploadBytes stores data as the remote file name, replacing it if it exists.
func (s *Session) UploadBytes(data []byte, name string) error {
	what := fmt.Sprintf("Upload %d bytes to %q", len(data), name)
	return s.run("upload", what, func(c *ftp.Client) error {
		return s.upload(c, bytes.NewReader(data), name)
	})
}

// UploadFromPath streams the local file localPath to the remote file
// name. Nothing is staged on disk.
func (s *Session) UploadFromPath(localPath, name string) error {
	what := fmt.Sprintf("Upload %s to %q", localPath, name)
	return s.run("upload", what, func(c *ftp.Client) error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return s.upload(c, f, name)
	})
}

func (s *Session) upload(c *ftp.Client, r io.Reader, name string) error {
	start := time.Now()
	n, err := c.Store(name, s.progressReader(name, r))
	if err != nil {
		return err
	}
	s.recordTransfer("upload", n, time.Since(start))
	return nil
}

// RawListing returns every entry of path as parsed from the server's
// listing, or of the working directory when path is empty.
func (s *Session) RawListing(path string) ([]*ftp.Entry, error) {
	var entries []*ftp.Entry
	err := s.run("list", fmt.Sprintf("List %q", path), func(c *ftp.Client) error {
		var err error
		entries, err = c.List(path)
		return err
	})
	return entries, err
}

// ListFiles returns the regular files in path.
func (s *Session) ListFiles(path string) ([]FileEntry, error) {
	var files []FileEntry
	err := s.run("list", fmt.Sprintf("List files in %q", path), func(c *ftp.Client) error {
		entries, err := c.List(path)
		if err != nil {
			return err
		}
		files = fileEntries(entries)
		return nil
	})
	return files, err
}

// ListDirectories returns the subdirectories of path.
func (s *Session) ListDirectories(path string) ([]DirectoryEntry, error) {
	var dirs []DirectoryEntry
	err := s.run("list", fmt.Sprintf("List directories in %q", path), func(c *ftp.Client) error {
		entries, err := c.List(path)
		if err != nil {
			return err
		}
		dirs = directoryEntries(entries)
		return nil
	})
	return dirs, err
}

// run executes one authenticated operation and records its outcome.
func (s *Session) run(op, what string, fn func(*ftp.Client) error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	start := time.Now()

	s.mu.Lock()
	c, state := s.client, s.state
	s.mu.Unlock()

	var err error
	if c == nil || state != Authenticated {
		err = &ftp.Error{Op: op, Kind: ErrNotConnected}
	} else if err = fn(c); broken(c, err) {
		s.logger.Debug("dropping broken connection", "op", op, "error", err)
		s.drop(c)
	}
	return s.finish(op, what, start, err)
}

// broken reports whether err leaves the control channel unusable: it was
// closed, or a reply may still be in flight.
func broken(c *ftp.Client, err error) bool {
	if err == nil {
		return false
	}
	return c.Closed() || errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}

// drop closes c and, if it is still the session's client, marks the
// session disconnected.
func (s *Session) drop(c *ftp.Client) {
	_ = c.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == c {
		s.client, s.state = nil, Disconnected
	}
}

// finish records one log entry for an attempt, mirrors it to the logger
// and the metrics collector, and returns err.
func (s *Session) finish(op, what string, start time.Time, err error) error {
	elapsed := time.Since(start)
	if err != nil {
		e := s.log.Record(fmt.Sprintf("%s failed: %v", what, err))
		s.logger.Warn(e.Message, "op", op, "duration", elapsed, "error", err)
	} else {
		e := s.log.Record(what + " succeeded")
		s.logger.Info(e.Message, "op", op, "duration", elapsed)
	}
	if s.metrics != nil {
		s.metrics.RecordOperation(op, err == nil, elapsed)
	}
	return err
}

func (s *Session) recordTransfer(direction string, n int64, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordTransfer(direction, n, d)
	}
}

func (s *Session) progressReader(name string, r io.Reader) io.Reader {
	if s.progress == nil {
		return r
	}
	return &ftp.ProgressReader{Reader: r, Callback: func(n int64) { s.progress(name, n) }}
}

func (s *Session) progressWriter(name string, w io.Writer) io.Writer {
	if s.progress == nil {
		return w
	}
	return &ftp.ProgressWriter{Writer: w, Callback: func(n int64) { s.progress(name, n) }}
}
