package prex

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHJump describes an SSH host a printer connection is tunneled
// through. Printers on isolated VLANs are often only reachable from a
// bastion; the transport opens a direct-tcpip channel from there.
type SSHJump struct {
	// Addr is the jump host address. A missing port defaults to 22.
	Addr string

	// User is the SSH login name.
	User string

	// Password authenticates if non-empty.
	Password string

	// KeyFile is a path to a PEM private key, tried before the password.
	KeyFile string

	// HostKeyCallback verifies the jump host key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// DialJump connects to the printer at addr through the jump host. A
// missing printer port defaults to 9100.
func DialJump(jump SSHJump, addr string) (*TCPTransport, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	jumpAddr := jump.Addr
	if _, _, err := net.SplitHostPort(jumpAddr); err != nil {
		jumpAddr = net.JoinHostPort(jumpAddr, "22")
	}

	var auth []ssh.AuthMethod
	if jump.KeyFile != "" {
		pem, err := os.ReadFile(jump.KeyFile)
		if err != nil {
			return nil, WrapError(ErrTransport, "read ssh key", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, WrapError(ErrTransport, "parse ssh key", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if jump.Password != "" {
		auth = append(auth, ssh.Password(jump.Password))
	}

	hostKey := jump.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	cfg := &ssh.ClientConfig{
		User:            jump.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         10 * time.Second,
	}

	return NewTransport(func() (Conn, error) {
		client, err := ssh.Dial("tcp", jumpAddr, cfg)
		if err != nil {
			return nil, err
		}
		conn, err := client.Dial("tcp", addr)
		if err != nil {
			client.Close()
			return nil, err
		}
		// Channel streams carry no deadline support; wrap them.
		return NewDeadlineConn(&jumpConn{conn: conn, client: client}), nil
	})
}

// jumpConn ties the tunneled stream to its SSH client so closing the
// transport tears both down.
type jumpConn struct {
	conn   net.Conn
	client *ssh.Client
}

func (j *jumpConn) Read(p []byte) (int, error)  { return j.conn.Read(p) }
func (j *jumpConn) Write(p []byte) (int, error) { return j.conn.Write(p) }

func (j *jumpConn) Close() error {
	err := j.conn.Close()
	j.client.Close()
	return err
}

// NewDeadlineConn adapts a deadline-less stream to Conn. A background
// reader feeds a channel; Read races the channel against the deadline.
func NewDeadlineConn(rwc io.ReadWriteCloser) Conn {
	c := &deadlineConn{
		rwc:   rwc,
		reads: make(chan readResult, 1),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

type readResult struct {
	data []byte
	err  error
}

type deadlineConn struct {
	rwc      io.ReadWriteCloser
	reads    chan readResult
	done     chan struct{}
	leftover []byte
	sticky   error
	deadline time.Time

	closeOnce sync.Once
}

func (c *deadlineConn) readLoop() {
	for {
		buf := make([]byte, 4096)
		n, err := c.rwc.Read(buf)
		select {
		case c.reads <- readResult{data: buf[:n], err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if len(c.leftover) > 0 {
		n := copy(p, c.leftover)
		c.leftover = c.leftover[n:]
		return n, nil
	}
	if c.sticky != nil {
		return 0, c.sticky
	}

	var expired <-chan time.Time
	if !c.deadline.IsZero() {
		d := time.Until(c.deadline)
		if d <= 0 {
			return 0, errDeadline
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-c.reads:
		c.sticky = res.err
		n := copy(p, res.data)
		c.leftover = res.data[n:]
		if n > 0 {
			return n, nil
		}
		return 0, res.err
	case <-expired:
		return 0, errDeadline
	}
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	return c.rwc.Write(p)
}

func (c *deadlineConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.rwc.Close()
	})
	return err
}

func (c *deadlineConn) SetReadDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

// deadlineError satisfies net.Error so the transport treats it like a
// socket timeout.
type deadlineError struct{}

var errDeadline net.Error = deadlineError{}

func (deadlineError) Error() string   { return "read deadline exceeded" }
func (deadlineError) Timeout() bool   { return true }
func (deadlineError) Temporary() bool { return true }
