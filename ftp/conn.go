package ftp

import (
	"io"
	"net"
	"time"

	"github.com/gonzalop/soundftp/internal/ratelimit"
)

// dataConn is one data connection. Every read and write pushes the
// deadline forward by timeout, so the timeout bounds inactivity rather
// than the total transfer time.
type dataConn struct {
	net.Conn
	timeout time.Duration
	r       io.Reader
	w       io.Writer
}

func newDataConn(conn net.Conn, timeout time.Duration, limiter *ratelimit.Limiter) *dataConn {
	d := &dataConn{Conn: conn, timeout: timeout}
	d.r = ratelimit.NewReader(readerFunc(d.read), limiter)
	d.w = ratelimit.NewWriter(writerFunc(d.write), limiter)
	return d
}

func (d *dataConn) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *dataConn) Write(p []byte) (int, error) { return d.w.Write(p) }

func (d *dataConn) read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.Conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.Conn.Read(p)
}

func (d *dataConn) write(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.Conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.Conn.Write(p)
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
