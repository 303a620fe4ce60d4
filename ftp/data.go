package ftp

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// pasvRegex finds the h1,h2,h3,h4,p1,p2 tuple of a 227 reply. Servers
// disagree on the surrounding parentheses, so they are not required.
var pasvRegex = regexp.MustCompile(`(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3})`)

// parsePASV parses "Entering Passive Mode (192,168,1,1,195,149)" into
// "192.168.1.1:50069".
func parsePASV(msg string) (string, error) {
	m := pasvRegex.FindStringSubmatch(msg)
	if m == nil {
		return "", fmt.Errorf("invalid PASV reply: %q", msg)
	}
	var n [6]int
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v > 255 {
			return "", fmt.Errorf("invalid PASV reply: %q", msg)
		}
		n[i] = v
	}
	ip := net.IPv4(byte(n[0]), byte(n[1]), byte(n[2]), byte(n[3]))
	port := n[4]<<8 | n[5]
	if port == 0 {
		return "", fmt.Errorf("invalid PASV port in %q", msg)
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(port)), nil
}

// parseEPSV parses "Entering Extended Passive Mode (|||6446|)" into "6446".
// RFC 2428 allows any delimiter character in place of '|'.
func parseEPSV(msg string) (string, error) {
	start := strings.IndexByte(msg, '(')
	end := strings.LastIndexByte(msg, ')')
	if start == -1 || end <= start {
		return "", fmt.Errorf("invalid EPSV reply: %q", msg)
	}
	inner := msg[start+1 : end]
	if len(inner) < 5 {
		return "", fmt.Errorf("invalid EPSV reply: %q", msg)
	}
	d := inner[0]
	if inner[1] != d || inner[2] != d || inner[len(inner)-1] != d {
		return "", fmt.Errorf("invalid EPSV reply: %q", msg)
	}
	portStr := inner[3 : len(inner)-1]
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port in %q", msg)
	}
	return portStr, nil
}

// formatPORT renders "192.168.1.100:50000" as "192,168,1,100,195,80".
func formatPORT(addr string) (string, error) {
	ip, port, err := splitIPPort(addr)
	if err != nil {
		return "", err
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return "", fmt.Errorf("PORT requires an IPv4 address, got %s", ip)
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip4[0], ip4[1], ip4[2], ip4[3], port>>8, port&0xff), nil
}

// formatEPRT renders an address as "|1|192.168.1.100|50000|" or
// "|2|::1|50000|".
func formatEPRT(addr string) (string, error) {
	ip, port, err := splitIPPort(addr)
	if err != nil {
		return "", err
	}
	proto := 2
	if ip.To4() != nil {
		proto = 1
	}
	return fmt.Sprintf("|%d|%s|%d|", proto, ip, port), nil
}

func splitIPPort(addr string) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("invalid IP address: %s", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, 0, fmt.Errorf("invalid port: %s", portStr)
	}
	return ip, port, nil
}

// resolveDataAddr replaces a PASV address that cannot be right: the
// unspecified address, or a private address handed out by a server whose
// control address is public (a NAT'd server that does not know its
// external address).
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return pasvAddr
	}
	if ip.IsUnspecified() {
		return net.JoinHostPort(controlHost, port)
	}
	control := net.ParseIP(controlHost)
	if control != nil && !isInternal(control) && isInternal(ip) {
		return net.JoinHostPort(controlHost, port)
	}
	return pasvAddr
}

func isInternal(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

// pendingData is a data connection negotiated but maybe not yet
// established: passive connections are dialed up front, active ones are
// accepted once the server has acknowledged the transfer command. close
// may be called from another goroutine while establish or a copy is
// blocked, which makes them fail.
type pendingData struct {
	mu       sync.Mutex
	conn     net.Conn
	listener net.Listener
	closed   bool
}

// establish returns the connection, accepting it first in active mode.
func (p *pendingData) establish(timeout time.Duration) (net.Conn, error) {
	p.mu.Lock()
	conn, ln := p.conn, p.listener
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, net.ErrClosed
	}
	if conn != nil {
		return conn, nil
	}

	if tl, ok := ln.(*net.TCPListener); ok && timeout > 0 {
		_ = tl.SetDeadline(time.Now().Add(timeout))
	}
	conn, err := ln.Accept()
	_ = ln.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = nil
	if err != nil {
		return nil, err
	}
	if p.closed {
		_ = conn.Close()
		return nil, net.ErrClosed
	}
	p.conn = conn
	return conn, nil
}

func (p *pendingData) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.conn != nil {
		_ = p.conn.Close()
	}
	if p.listener != nil {
		_ = p.listener.Close()
	}
}

// openData negotiates a data connection. The caller must hold c.mu.
func (c *Client) openData() (*pendingData, error) {
	if c.activeMode {
		return c.openActive()
	}
	return c.openPassive()
}

func (c *Client) openPassive() (*pendingData, error) {
	var addr string

	if !c.disableEPSV {
		reply, err := c.cmd("EPSV")
		if err != nil {
			return nil, err
		}
		switch {
		case reply.Code == 229:
			if port, perr := parseEPSV(reply.Message); perr == nil {
				addr = net.JoinHostPort(c.host, port)
			}
		case reply.Code == 500 || reply.Code == 502:
			c.logger.Debug("server does not support EPSV, using PASV from now on")
			c.disableEPSV = true
		}
	}

	if addr == "" {
		reply, err := c.expect2xx("PASV")
		if err != nil {
			return nil, err
		}
		pasvAddr, err := parsePASV(reply.Message)
		if err != nil {
			return nil, &Error{Op: "PASV", Kind: ErrTransfer, Err: err}
		}
		addr = resolveDataAddr(pasvAddr, c.host)
	}

	conn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, wrap("data connection", ErrTransfer, err)
	}
	return &pendingData{conn: conn}, nil
}

func (c *Client) openActive() (*pendingData, error) {
	host, _, err := net.SplitHostPort(c.conn.LocalAddr().String())
	if err != nil {
		return nil, &Error{Op: "PORT", Kind: ErrTransfer, Err: err}
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, &Error{Op: "PORT", Kind: ErrTransfer, Err: err}
	}

	command, format := "PORT", formatPORT
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		command, format = "EPRT", formatEPRT
	}
	arg, err := format(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return nil, &Error{Op: command, Kind: ErrTransfer, Err: err}
	}
	if _, err := c.expect2xx(command, arg); err != nil {
		_ = ln.Close()
		return nil, err
	}
	return &pendingData{listener: ln}, nil
}
