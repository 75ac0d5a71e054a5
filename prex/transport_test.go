package prex

import (
	"net"
	"regexp"
	"runtime"
	"testing"
	"time"
)

func pipeTransport(t *testing.T) (*TCPTransport, net.Conn) {
	t.Helper()
	var server net.Conn
	tr, err := NewTransport(func() (Conn, error) {
		c, s := net.Pipe()
		server = s
		return c, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr, server
}

func TestRecvCropsAtMatch(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()

	go func() {
		server.Write([]byte("hp LaserJet 4250\r\n@PJL ECHO 31337\r\ntrailing junk"))
	}()

	reply, err := tr.Recv(regexp.MustCompile(`(@PJL ECHO\s+)?31337`), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "hp LaserJet 4250\r\n" {
		t.Fatalf("got %q", reply)
	}
}

// A device that never echoes the delimiter is indistinguishable from a
// slow one; the partial buffer comes back without an error.
func TestRecvTimeoutReturnsPartial(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()

	go func() {
		server.Write([]byte("partial output"))
	}()

	reply, err := tr.Recv(regexp.MustCompile("NEVERMATCHES"), 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "partial output" {
		t.Fatalf("got %q", reply)
	}
}

func TestRecvSilentDevice(t *testing.T) {
	tr, _ := pipeTransport(t)
	defer tr.Close()

	reply, err := tr.Recv(regexp.MustCompile("x"), 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply) != 0 {
		t.Fatalf("got %q, want empty", reply)
	}
}

func TestRecvMatchSpansChunks(t *testing.T) {
	tr, server := pipeTransport(t)
	defer tr.Close()

	go func() {
		server.Write([]byte("data data data @PJL EC"))
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte("HO 999\r\n"))
	}()

	reply, err := tr.Recv(regexp.MustCompile(`@PJL ECHO 999`), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "data data data " {
		t.Fatalf("got %q", reply)
	}
}

// Closing with an undelivered read in flight must not strand the
// background reader.
func TestDeadlineConnCloseUnblocksReader(t *testing.T) {
	before := runtime.NumGoroutine()

	client, server := net.Pipe()
	defer client.Close()
	dc := NewDeadlineConn(server)

	go client.Write([]byte("a"))
	time.Sleep(10 * time.Millisecond) // let the reader park the chunk
	if err := dc.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := runtime.NumGoroutine(); n > before {
		t.Fatalf("reader goroutine leaked: %d running, started with %d", n, before)
	}
}

func TestDeadlineConnReadAndTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	dc := NewDeadlineConn(server)
	defer dc.Close()

	go client.Write([]byte("reply"))
	dc.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := dc.Read(buf)
	if err != nil || string(buf[:n]) != "reply" {
		t.Fatalf("Read = %q, %v", buf[:n], err)
	}

	dc.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	if _, err := dc.Read(buf); err == nil || !err.(net.Error).Timeout() {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestReopenReplacesConn(t *testing.T) {
	dials := 0
	tr, err := NewTransport(func() (Conn, error) {
		dials++
		c, _ := net.Pipe()
		return c, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if err := tr.Reopen(); err != nil {
		t.Fatal(err)
	}
	if dials != 2 {
		t.Fatalf("dials = %d, want 2", dials)
	}
}
