package prex

import (
	"errors"
	"io"
	"net"
	"regexp"
	"time"
)

// DefaultPort is the raw print service port (AppSocket/JetDirect).
const DefaultPort = "9100"

// Conn is the connection a transport runs on. net.Conn satisfies it;
// deadline-less streams can be adapted with NewDeadlineConn.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(time.Time) error
}

// Transport moves raw bytes to and from a printer. Send pushes a
// complete framed job, Recv collects the reply up to a delimiter
// pattern, Reopen tears the connection down and dials again.
type Transport interface {
	Send(data []byte) error
	Recv(pattern *regexp.Regexp, timeout time.Duration) ([]byte, error)
	Close() error
	Reopen() error
}

// Dialer opens a fresh connection to the device.
type Dialer func() (Conn, error)

// TCPTransport is a Transport over a single stream connection, usually
// raw TCP port 9100. It is not safe for concurrent use.
type TCPTransport struct {
	dial Dialer
	conn Conn
}

// Dial connects to addr over TCP. A missing port defaults to 9100.
func Dial(addr string) (*TCPTransport, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	return NewTransport(func() (Conn, error) {
		c, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return c.(Conn), nil
	})
}

// NewTransport dials once via dial and returns a transport that uses
// the same dialer for reconnects.
func NewTransport(dial Dialer) (*TCPTransport, error) {
	conn, err := dial()
	if err != nil {
		return nil, WrapError(ErrTransport, "connect failed", err)
	}
	return &TCPTransport{dial: dial, conn: conn}, nil
}

// Send writes the framed job to the device in one piece.
func (t *TCPTransport) Send(data []byte) error {
	if t.conn == nil {
		return NewError(ErrTransport, "connection closed")
	}
	if _, err := t.conn.Write(data); err != nil {
		return WrapError(ErrTransport, "write failed", err)
	}
	return nil
}

// Recv reads until pattern matches or timeout elapses. The returned
// slice holds everything before the match; the match itself and any
// trailing bytes are dropped. A timeout is not an error: the partial
// buffer is returned with a nil error, since a device with nothing to
// say and a device that ignored the command look the same on the wire.
func (t *TCPTransport) Recv(pattern *regexp.Regexp, timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, NewError(ErrTransport, "connection closed")
	}
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		if loc := pattern.FindIndex(buf); loc != nil {
			return buf[:loc[0]], nil
		}
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return buf, WrapError(ErrTransport, "set deadline failed", err)
		}
		n, err := t.conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				if loc := pattern.FindIndex(buf); loc != nil {
					return buf[:loc[0]], nil
				}
				return buf, nil
			}
			return buf, WrapError(ErrTransport, "read failed", err)
		}
	}
}

// Close shuts the connection down.
func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Reopen drops the current connection and dials again.
func (t *TCPTransport) Reopen() error {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	conn, err := t.dial()
	if err != nil {
		return WrapError(ErrTransport, "reconnect failed", err)
	}
	t.conn = conn
	return nil
}
