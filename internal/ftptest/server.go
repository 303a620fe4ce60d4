// Package ftptest provides an in-memory FTP server for tests.
//
// The server keeps a tree of directories and files in memory, speaks
// enough of RFC 959, 2428 and 3659 for a client to log in, navigate,
// list, upload and download, and lets tests inject failures.
package ftptest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ModTime is the modification time given to every file and directory.
var ModTime = time.Date(2024, time.March, 9, 14, 30, 0, 0, time.UTC)

// Server is an FTP server listening on a loopback port.
type Server struct {
	listener net.Listener

	mu        sync.Mutex
	users     map[string]string
	dirs      map[string]bool
	files     map[string][]byte
	overrides map[string]string
	drops     map[string]int
	mlsd      bool
	noEPSV    bool
	commands  []string

	received atomic.Int64
	conns    sync.WaitGroup
	closed   atomic.Bool
	active   sync.Map // net.Conn -> struct{}
}

// isFile reports whether p is a stored file. The caller must hold s.mu.
func (s *Server) isFile(p string) bool {
	_, ok := s.files[p]
	return ok
}

// Option configures a Server.
type Option func(*Server)

// WithUser restricts logins to the given users. Without it any
// credentials are accepted.
func WithUser(name, password string) Option {
	return func(s *Server) {
		s.users[name] = password
	}
}

// WithMLSD advertises MLST in FEAT and serves MLSD.
func WithMLSD() Option {
	return func(s *Server) {
		s.mlsd = true
	}
}

// WithoutEPSV answers EPSV with 502.
func WithoutEPSV() Option {
	return func(s *Server) {
		s.noEPSV = true
	}
}

// NewServer starts a server on 127.0.0.1 with an empty root directory.
func NewServer(opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener:  ln,
		users:     make(map[string]string),
		dirs:      map[string]bool{"/": true},
		files:     make(map[string][]byte),
		overrides: make(map[string]string),
		drops:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.serve()
	return s, nil
}

// Addr returns the control address as "127.0.0.1:port".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting connections, drops open sessions and waits for
// them to end.
func (s *Server) Close() error {
	s.closed.Store(true)
	err := s.listener.Close()
	s.active.Range(func(key, _ any) bool {
		_ = key.(net.Conn).Close()
		return true
	})
	s.conns.Wait()
	return err
}

// Mkdir creates a directory and its parents.
func (s *Server) Mkdir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p = path.Clean("/" + p); p != "/"; p = path.Dir(p) {
		s.dirs[p] = true
	}
}

// WriteFile stores a file, creating its parent directories.
func (s *Server) WriteFile(p string, data []byte) {
	p = path.Clean("/" + p)
	s.Mkdir(path.Dir(p))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = append([]byte(nil), data...)
}

// ReadFile returns a copy of a stored file.
func (s *Server) ReadFile(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path.Clean("/"+p)]
	return append([]byte(nil), data...), ok
}

// DirExists reports whether a directory exists.
func (s *Server) DirExists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[path.Clean("/"+p)]
}

// Override makes the server answer every use of command with reply
// (e.g. "550 Permission denied.") without executing it. An empty reply
// removes the override.
func (s *Server) Override(command, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reply == "" {
		delete(s.overrides, strings.ToUpper(command))
		return
	}
	s.overrides[strings.ToUpper(command)] = reply
}

// DropTransfer makes the next RETR of p send only n bytes, reset the
// data connection and reply 426.
func (s *Server) DropTransfer(p string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops[path.Clean("/"+p)] = n
}

// Commands returns the verbs received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// BytesReceived returns the number of bytes read from all control connections.
func (s *Server) BytesReceived() int64 {
	return s.received.Load()
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.conns.Add(1)
		s.active.Store(conn, struct{}{})
		go func() {
			defer s.conns.Done()
			defer s.active.Delete(conn)
			newSession(s, conn).run()
		}()
	}
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

type session struct {
	srv    *Server
	conn   net.Conn
	reader *bufio.Reader

	user       string
	loggedIn   bool
	cwd        string
	renameFrom string

	pasv net.Listener
	port string
}

func newSession(s *Server, conn net.Conn) *session {
	return &session{
		srv:    s,
		conn:   conn,
		reader: bufio.NewReader(countingReader{r: conn, n: &s.received}),
		cwd:    "/",
	}
}

func (ss *session) reply(code int, format string, args ...any) {
	fmt.Fprintf(ss.conn, "%d %s\r\n", code, fmt.Sprintf(format, args...))
}

func (ss *session) run() {
	defer ss.conn.Close()
	defer ss.closeData()

	ss.reply(220, "soundftp test server ready.")
	for {
		if ss.srv.closed.Load() {
			return
		}
		_ = ss.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := ss.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		ss.srv.mu.Lock()
		ss.srv.commands = append(ss.srv.commands, verb)
		override, overridden := ss.srv.overrides[verb]
		ss.srv.mu.Unlock()

		if overridden {
			fmt.Fprintf(ss.conn, "%s\r\n", override)
			continue
		}
		if !ss.handle(verb, arg) {
			return
		}
	}
}

// handle executes one command; false ends the session.
func (ss *session) handle(verb, arg string) bool {
	switch verb {
	case "USER":
		ss.user, ss.loggedIn = arg, false
		ss.reply(331, "Password required for %s.", arg)
		return true
	case "PASS":
		ss.srv.mu.Lock()
		want, known := ss.srv.users[ss.user]
		open := len(ss.srv.users) == 0
		ss.srv.mu.Unlock()
		if ss.user == "" || (!open && (!known || want != arg)) {
			ss.reply(530, "Login incorrect.")
			return true
		}
		ss.loggedIn = true
		ss.reply(230, "User %s logged in.", ss.user)
		return true
	case "QUIT":
		ss.reply(221, "Goodbye.")
		return false
	case "FEAT":
		fmt.Fprintf(ss.conn, "211-Features:\r\n")
		if ss.srv.mlsd {
			fmt.Fprintf(ss.conn, " MLST type*;size*;modify*;perm*;\r\n")
		}
		fmt.Fprintf(ss.conn, " SIZE\r\n EPSV\r\n PASV\r\n211 End\r\n")
		return true
	case "SYST":
		ss.reply(215, "UNIX Type: L8")
		return true
	case "NOOP":
		ss.reply(200, "NOOP ok.")
		return true
	}

	if !ss.loggedIn {
		ss.reply(530, "Please login with USER and PASS.")
		return true
	}

	switch verb {
	case "TYPE":
		ss.reply(200, "Type set to %s.", arg)
	case "PWD", "XPWD":
		ss.reply(257, "\"%s\" is the current directory.", strings.ReplaceAll(ss.cwd, `"`, `""`))
	case "CWD":
		ss.cwdTo(ss.resolve(arg))
	case "CDUP":
		ss.cwdTo(path.Dir(ss.cwd))
	case "MKD":
		ss.mkd(ss.resolve(arg))
	case "RMD":
		ss.rmd(ss.resolve(arg))
	case "DELE":
		ss.dele(ss.resolve(arg))
	case "RNFR":
		ss.rnfr(ss.resolve(arg))
	case "RNTO":
		ss.rnto(ss.resolve(arg))
	case "SIZE":
		ss.size(ss.resolve(arg))
	case "EPSV":
		ss.epsv()
	case "PASV":
		ss.passive()
	case "PORT":
		ss.portCmd(arg)
	case "EPRT":
		ss.eprt(arg)
	case "RETR":
		ss.retr(ss.resolve(arg))
	case "STOR":
		ss.stor(ss.resolve(arg))
	case "LIST", "NLST":
		ss.list(verb, arg)
	case "MLSD":
		if !ss.srv.mlsd {
			ss.reply(502, "MLSD not implemented.")
			break
		}
		ss.list(verb, arg)
	default:
		ss.reply(502, "Command %s not implemented.", verb)
	}
	return true
}

func (ss *session) resolve(arg string) string {
	if arg == "" {
		return ss.cwd
	}
	if strings.HasPrefix(arg, "/") {
		return path.Clean(arg)
	}
	return path.Clean(path.Join(ss.cwd, arg))
}

func (ss *session) cwdTo(p string) {
	if !ss.srv.DirExists(p) {
		ss.reply(550, "%s: No such file or directory.", p)
		return
	}
	ss.cwd = p
	ss.reply(250, "CWD command successful.")
}

func (ss *session) mkd(p string) {
	s := ss.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.dirs[p] || s.isFile(p):
		ss.reply(550, "%s: File exists.", p)
	case !s.dirs[path.Dir(p)]:
		ss.reply(550, "%s: No such file or directory.", path.Dir(p))
	default:
		s.dirs[p] = true
		ss.reply(257, "\"%s\" directory created.", strings.ReplaceAll(p, `"`, `""`))
	}
}

func (ss *session) rmd(p string) {
	s := ss.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == "/" {
		ss.reply(550, "Permission denied.")
		return
	}
	if !s.dirs[p] {
		ss.reply(550, "%s: No such file or directory.", p)
		return
	}
	prefix := p + "/"
	for d := range s.dirs {
		if strings.HasPrefix(d, prefix) {
			ss.reply(550, "%s: Directory not empty.", p)
			return
		}
	}
	for f := range s.files {
		if strings.HasPrefix(f, prefix) {
			ss.reply(550, "%s: Directory not empty.", p)
			return
		}
	}
	delete(s.dirs, p)
	ss.reply(250, "RMD command successful.")
}

func (ss *session) dele(p string) {
	s := ss.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[p]; !ok {
		ss.reply(550, "%s: No such file or directory.", p)
		return
	}
	delete(s.files, p)
	ss.reply(250, "DELE command successful.")
}

func (ss *session) rnfr(p string) {
	s := ss.srv
	s.mu.Lock()
	_, isFile := s.files[p]
	isDir := s.dirs[p]
	s.mu.Unlock()
	if !isFile && !isDir {
		ss.reply(550, "%s: No such file or directory.", p)
		return
	}
	ss.renameFrom = p
	ss.reply(350, "File exists, ready for destination name.")
}

func (ss *session) rnto(p string) {
	from := ss.renameFrom
	ss.renameFrom = ""
	if from == "" {
		ss.reply(503, "Bad sequence of commands.")
		return
	}
	s := ss.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirs[path.Dir(p)] {
		ss.reply(550, "%s: No such file or directory.", path.Dir(p))
		return
	}
	if data, ok := s.files[from]; ok {
		delete(s.files, from)
		s.files[p] = data
	} else {
		// Move the directory and everything below it.
		prefix := from + "/"
		for d := range s.dirs {
			if d == from || strings.HasPrefix(d, prefix) {
				delete(s.dirs, d)
				s.dirs[p+strings.TrimPrefix(d, from)] = true
			}
		}
		for f, data := range s.files {
			if strings.HasPrefix(f, prefix) {
				delete(s.files, f)
				s.files[p+strings.TrimPrefix(f, from)] = data
			}
		}
	}
	ss.reply(250, "Rename successful.")
}

func (ss *session) size(p string) {
	data, ok := ss.srv.ReadFile(p)
	if !ok {
		ss.reply(550, "%s: No such file or directory.", p)
		return
	}
	ss.reply(213, "%d", len(data))
}

func (ss *session) listenPassive() (int, bool) {
	ss.closeData()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		ss.reply(425, "Cannot open passive connection.")
		return 0, false
	}
	ss.pasv = ln
	return ln.Addr().(*net.TCPAddr).Port, true
}

func (ss *session) epsv() {
	if ss.srv.noEPSV {
		ss.reply(502, "EPSV not implemented.")
		return
	}
	if port, ok := ss.listenPassive(); ok {
		ss.reply(229, "Entering Extended Passive Mode (|||%d|)", port)
	}
}

func (ss *session) passive() {
	if port, ok := ss.listenPassive(); ok {
		ss.reply(227, "Entering Passive Mode (127,0,0,1,%d,%d).", port>>8, port&0xff)
	}
}

func (ss *session) portCmd(arg string) {
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		ss.reply(501, "Illegal PORT command.")
		return
	}
	var n [6]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			ss.reply(501, "Illegal PORT command.")
			return
		}
		n[i] = v
	}
	ss.closeData()
	ss.port = net.JoinHostPort(fmt.Sprintf("%d.%d.%d.%d", n[0], n[1], n[2], n[3]), strconv.Itoa(n[4]<<8|n[5]))
	ss.reply(200, "PORT command successful.")
}

func (ss *session) eprt(arg string) {
	if len(arg) < 2 {
		ss.reply(501, "Illegal EPRT command.")
		return
	}
	fields := strings.Split(arg[1:len(arg)-1], arg[:1])
	if len(fields) != 3 {
		ss.reply(501, "Illegal EPRT command.")
		return
	}
	ss.closeData()
	ss.port = net.JoinHostPort(fields[1], fields[2])
	ss.reply(200, "EPRT command successful.")
}

func (ss *session) closeData() {
	if ss.pasv != nil {
		_ = ss.pasv.Close()
		ss.pasv = nil
	}
	ss.port = ""
}

// openData returns the data connection negotiated by the last
// EPSV/PASV/PORT/EPRT, after the 150 reply has been sent.
func (ss *session) openData() (net.Conn, error) {
	defer ss.closeData()
	switch {
	case ss.pasv != nil:
		if tl, ok := ss.pasv.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(10 * time.Second))
		}
		return ss.pasv.Accept()
	case ss.port != "":
		return net.DialTimeout("tcp", ss.port, 10*time.Second)
	}
	return nil, fmt.Errorf("no data connection")
}

func (ss *session) haveData() bool {
	if ss.pasv == nil && ss.port == "" {
		ss.reply(425, "Use PORT or PASV first.")
		return false
	}
	return true
}

func (ss *session) retr(p string) {
	data, ok := ss.srv.ReadFile(p)
	if !ok {
		ss.closeData()
		ss.reply(550, "%s: No such file or directory.", p)
		return
	}
	if !ss.haveData() {
		return
	}

	ss.srv.mu.Lock()
	drop, dropping := ss.srv.drops[p]
	delete(ss.srv.drops, p)
	ss.srv.mu.Unlock()

	ss.reply(150, "Opening BINARY mode data connection for %s (%d bytes).", path.Base(p), len(data))
	conn, err := ss.openData()
	if err != nil {
		ss.reply(425, "Cannot open data connection.")
		return
	}

	if dropping {
		_, _ = conn.Write(data[:min(drop, len(data))])
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
		_ = conn.Close()
		ss.reply(426, "Connection closed; transfer aborted.")
		return
	}

	_, err = conn.Write(data)
	_ = conn.Close()
	if err != nil {
		ss.reply(426, "Connection closed; transfer aborted.")
		return
	}
	ss.reply(226, "Transfer complete.")
}

func (ss *session) stor(p string) {
	if !ss.srv.DirExists(path.Dir(p)) || ss.srv.DirExists(p) {
		ss.closeData()
		ss.reply(553, "%s: Cannot create file.", p)
		return
	}
	if !ss.haveData() {
		return
	}
	ss.reply(150, "Opening BINARY mode data connection for %s.", path.Base(p))
	conn, err := ss.openData()
	if err != nil {
		ss.reply(425, "Cannot open data connection.")
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	data, err := io.ReadAll(conn)
	_ = conn.Close()
	if err != nil {
		ss.reply(426, "Connection closed; transfer aborted.")
		return
	}
	ss.srv.WriteFile(p, data)
	ss.reply(226, "Transfer complete.")
}

type listing struct {
	name string
	dir  bool
	size int
}

func (ss *session) list(verb, arg string) {
	// Ignore ls-style flags such as "-la".
	if strings.HasPrefix(arg, "-") {
		_, arg, _ = strings.Cut(arg, " ")
	}
	target := ss.resolve(arg)

	s := ss.srv
	s.mu.Lock()
	var items []listing
	switch {
	case s.dirs[target]:
		prefix := strings.TrimSuffix(target, "/") + "/"
		for d := range s.dirs {
			if d != "/" && path.Dir(d) == target {
				items = append(items, listing{name: strings.TrimPrefix(d, prefix), dir: true})
			}
		}
		for f, data := range s.files {
			if path.Dir(f) == target {
				items = append(items, listing{name: strings.TrimPrefix(f, prefix), size: len(data)})
			}
		}
	case s.isFile(target):
		items = append(items, listing{name: path.Base(target), size: len(s.files[target])})
	default:
		s.mu.Unlock()
		ss.closeData()
		ss.reply(550, "%s: No such file or directory.", target)
		return
	}
	s.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })

	if !ss.haveData() {
		return
	}
	ss.reply(150, "Opening ASCII mode data connection for file list.")
	conn, err := ss.openData()
	if err != nil {
		ss.reply(425, "Cannot open data connection.")
		return
	}
	w := bufio.NewWriter(conn)
	for _, it := range items {
		switch verb {
		case "MLSD":
			typ, perm := "file", "adfrw"
			if it.dir {
				typ, perm = "dir", "flcdmpe"
			}
			fmt.Fprintf(w, "type=%s;size=%d;modify=%s;perm=%s; %s\r\n", typ, it.size, ModTime.Format("20060102150405"), perm, it.name)
		case "NLST":
			fmt.Fprintf(w, "%s\r\n", it.name)
		default:
			perm := "-rw-r--r--"
			if it.dir {
				perm = "drwxr-xr-x"
			}
			fmt.Fprintf(w, "%s    1 ftp      ftp      %8d %s %s\r\n", perm, it.size, ModTime.Format("Jan _2  2006"), it.name)
		}
	}
	_ = w.Flush()
	_ = conn.Close()
	ss.reply(226, "Transfer complete.")
}
