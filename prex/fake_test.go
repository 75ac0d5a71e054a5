package prex

import (
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeTransport is a scripted device. Replies are either queued up
// front or produced by an onSend hook that inspects the outgoing job.
// Recv applies the same crop-at-match rule as the real transport; a
// reply with no match plays the timeout path and is returned whole.
type fakeTransport struct {
	sends    [][]byte
	queue    [][]byte
	onSend   func(job []byte)
	sendErr  map[int]error // keyed by zero-based send call
	reopens  int
	closed   bool
}

func (f *fakeTransport) Send(b []byte) error {
	call := len(f.sends)
	f.sends = append(f.sends, append([]byte(nil), b...))
	if err := f.sendErr[call]; err != nil {
		return err
	}
	if f.onSend != nil {
		f.onSend(b)
	}
	return nil
}

func (f *fakeTransport) Recv(pattern *regexp.Regexp, _ time.Duration) ([]byte, error) {
	// drain everything buffered, like a socket read loop would
	var raw []byte
	for _, chunk := range f.queue {
		raw = append(raw, chunk...)
	}
	f.queue = nil
	if loc := pattern.FindIndex(raw); loc != nil {
		return raw[:loc[0]], nil
	}
	return raw, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) Reopen() error {
	f.reopens++
	return nil
}

func (f *fakeTransport) push(reply string) {
	f.queue = append(f.queue, []byte(reply))
}

func (f *fakeTransport) lastSend() []byte {
	if len(f.sends) == 0 {
		return nil
	}
	return f.sends[len(f.sends)-1]
}

func newTestSession(t *testing.T, ft *fakeTransport, opts ...Option) *Session {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := NewSession(ft, append([]Option{WithLogger(log)}, opts...)...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

var (
	pjlJobToken = regexp.MustCompile(`@PJL ECHO (DELIMITER\d+)`)
	pclJobToken = regexp.MustCompile(`\x1b\*s(-\d+)X`)
	psJobToken  = regexp.MustCompile(`\((DELIMITER\d+)\\n\) print flush`)
)

// jobToken extracts the delimiter token a framed job asks the device
// to echo back.
func jobToken(job []byte, pattern *regexp.Regexp) string {
	m := pattern.FindSubmatch(job)
	if m == nil {
		return ""
	}
	return string(m[1])
}
