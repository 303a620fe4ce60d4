package ftptest

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
)

// These tests drive the server with an independent client so the
// fixtures the rest of the module relies on are known to speak FTP.

func dialJlaffaye(t *testing.T, s *Server) *ftp.ServerConn {
	t.Helper()
	c, err := ftp.Dial(s.Addr(), ftp.DialWithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Quit() })
	if err := c.Login("user", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return c
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServer_StoreRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	c := dialJlaffaye(t, s)

	payload := bytes.Repeat([]byte("bgm"), 10000)
	if err := c.Stor("title.ogg", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Stor: %v", err)
	}
	if got, ok := s.ReadFile("/title.ogg"); !ok || !bytes.Equal(got, payload) {
		t.Fatalf("stored file mismatch (present=%v, %d bytes)", ok, len(got))
	}

	r, err := c.Retr("title.ogg")
	if err != nil {
		t.Fatalf("Retr: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("retrieved %d bytes, want %d", len(got), len(payload))
	}
}

func TestServer_DirectoryCommands(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	c := dialJlaffaye(t, s)

	if err := c.MakeDir("music"); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}
	if err := c.MakeDir("music"); err == nil {
		t.Error("MakeDir of an existing directory succeeded")
	}
	if err := c.ChangeDir("music"); err != nil {
		t.Fatalf("ChangeDir: %v", err)
	}
	dir, err := c.CurrentDir()
	if err != nil {
		t.Fatalf("CurrentDir: %v", err)
	}
	if dir != "/music" {
		t.Errorf("CurrentDir = %q, want /music", dir)
	}
	if err := c.ChangeDir("/missing"); err == nil {
		t.Error("ChangeDir to a missing directory succeeded")
	}
	if err := c.ChangeDir("/"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveDir("music"); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}
	if s.DirExists("/music") {
		t.Error("directory still exists after RMD")
	}
}

func TestServer_ListFormats(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		opts []Option
	}{
		{"LIST", nil},
		{"MLSD", []Option{WithMLSD()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, tc.opts...)
			s.WriteFile("/bgm/title.ogg", []byte("12345"))
			s.Mkdir("/bgm/stage1")
			c := dialJlaffaye(t, s)

			entries, err := c.List("/bgm")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("got %d entries, want 2", len(entries))
			}
			if entries[0].Name != "stage1" || entries[0].Type != ftp.EntryTypeFolder {
				t.Errorf("entry 0 = %+v, want folder stage1", entries[0])
			}
			if entries[1].Name != "title.ogg" || entries[1].Type != ftp.EntryTypeFile || entries[1].Size != 5 {
				t.Errorf("entry 1 = %+v, want 5 byte file title.ogg", entries[1])
			}
		})
	}
}

func TestServer_RejectsBadPassword(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, WithUser("user", "secret"))
	c, err := ftp.Dial(s.Addr(), ftp.DialWithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Quit() }()
	if err := c.Login("user", "wrong"); err == nil {
		t.Error("Login with a wrong password succeeded")
	}
}

func TestServer_CountsControlBytes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	buf := make([]byte, 128)
	if _, err := conn.Read(buf); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write([]byte("NOOP\r\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(buf); err != nil {
		t.Fatal(err)
	}
	if got := s.BytesReceived(); got != 6 {
		t.Errorf("BytesReceived = %d, want 6", got)
	}
	if cmds := s.Commands(); len(cmds) != 1 || cmds[0] != "NOOP" {
		t.Errorf("Commands = %v, want [NOOP]", cmds)
	}
}
