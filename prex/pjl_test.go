package prex

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
)

// newTestPJL wires a PJL dialect to a scripted device that answers
// every waiting command through handler. handler sees the raw framed
// job and returns the device's raw stream; the token echo is appended
// automatically.
func newTestPJL(t *testing.T, handler func(job []byte) string, opts ...Option) (*PJL, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	ft.onSend = func(job []byte) {
		var body string
		if handler != nil {
			body = handler(job)
		}
		token := jobToken(job, pjlJobToken)
		if token == "" {
			return // fire and forget, reply dropped
		}
		ft.push(body + "@PJL ECHO " + token + "\r\n")
	}
	s := newTestSession(t, ft, opts...)
	p, err := NewPJL(s)
	if err != nil {
		t.Fatal(err)
	}
	return p, ft
}

func TestPJLFraming(t *testing.T) {
	p, ft := newTestPJL(t, nil)
	if _, err := p.Command([]byte("@PJL INFO ID"), CmdOptions{}); err != nil {
		t.Fatal(err)
	}
	job := string(ft.lastSend())
	if !strings.HasPrefix(job, UEL) || !strings.HasSuffix(job, UEL) {
		t.Errorf("job not UEL-framed: %q", job)
	}
	if !strings.Contains(job, "@PJL INFO ID"+EOL) {
		t.Errorf("payload missing: %q", job)
	}
	if !regexp.MustCompile(`@PJL ECHO DELIMITER\d+\r\n\r\n`).MatchString(job) {
		t.Errorf("echo footer missing: %q", job)
	}
}

func TestPJLCropsEchoedCommand(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		return "\x04@PJL INFO ID\r\n\"hp LaserJet 4250\"\r\n"
	})
	id, err := p.ID()
	if err != nil {
		t.Fatal(err)
	}
	if id != "hp LaserJet 4250" {
		t.Fatalf("ID = %q", id)
	}
}

func TestPJLFileErrorSurfaces(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		if bytes.Contains(job, []byte("FSDELETE")) {
			return "FILEERROR=3\r\n"
		}
		return ""
	})
	if err := p.Delete("nothere"); err != nil {
		t.Fatal(err)
	}
	lastErr := p.LastError()
	if lastErr == nil {
		t.Fatal("expected a device error for FILEERROR")
	}
	if !strings.Contains(lastErr.Message, "30003") {
		t.Fatalf("error = %v", lastErr)
	}
}

func TestPJLExists(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		switch {
		case bytes.Contains(job, []byte(`FSQUERY NAME="0:/config"`)):
			return `@PJL FSQUERY NAME="0:/config" TYPE=FILE SIZE=384` + "\r\n"
		case bytes.Contains(job, []byte(`FSQUERY NAME="0:/webServer"`)):
			return `@PJL FSQUERY NAME="0:/webServer" TYPE=DIR` + "\r\n"
		default:
			return "FILEERROR=1\r\n"
		}
	}, WithVolume("0:"))

	if got := p.Exists("config"); got != 384 {
		t.Errorf("Exists(config) = %d, want 384", got)
	}
	if got := p.Exists("webServer"); got != FileExists {
		t.Errorf("Exists(webServer) = %d, want FileExists", got)
	}
	if got := p.Exists("nothere"); got != Nonexistent {
		t.Errorf("Exists(nothere) = %d, want Nonexistent", got)
	}
}

func TestPJLList(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		if !bytes.Contains(job, []byte("FSDIRLIST")) {
			return ""
		}
		return `@PJL FSDIRLIST NAME="0:/" ENTRY=1` + "\r\n" +
			". TYPE=DIR\r\n.. TYPE=DIR\r\n" +
			"webServer TYPE=DIR\r\n" +
			"config TYPE=FILE SIZE=384\r\n"
	}, WithVolume("0:"))

	entries, err := p.List("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries", len(entries))
	}
}

// pjlLockDevice emulates PIN protection: a JOB opened with the right
// password lets the following DEFAULT PASSWORD=0 through.
type pjlLockDevice struct {
	pin    string
	locked bool
	chunks int
}

var jobPassword = regexp.MustCompile(`@PJL JOB PASSWORD=(\d*)`)

func (d *pjlLockDevice) handle(job []byte) string {
	if m := jobPassword.FindAllSubmatch(job, -1); m != nil {
		d.chunks++
		for _, c := range m {
			if string(c[1]) == d.pin {
				d.locked = false
			}
		}
	}
	switch {
	case bytes.Contains(job, []byte("DINQUIRE PASSWORD")):
		state := "DISABLED"
		if d.locked {
			state = "ENABLED"
		}
		return "@PJL DINQUIRE PASSWORD\r\n" + state + "\r\n"
	case bytes.Contains(job, []byte("DINQUIRE CPLOCK")),
		bytes.Contains(job, []byte("DINQUIRE DISKLOCK")):
		return "OFF\r\n"
	}
	return ""
}

// With chunks larger than one the search removes the protection but
// cannot tell which candidate matched.
func TestCrackPINChunked(t *testing.T) {
	dev := &pjlLockDevice{pin: "4", locked: true}
	p, _ := newTestPJL(t, dev.handle, WithChunkSize(2))

	pin, removed, err := p.crackPIN([]string{"1", "2", "3", "4", "5"})
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("protection not removed")
	}
	if pin != "" {
		t.Fatalf("pin = %q, want unknown with chunk size 2", pin)
	}
	if dev.chunks > 2 {
		t.Fatalf("search used %d chunks, want at most 2", dev.chunks)
	}
}

func TestCrackPINExact(t *testing.T) {
	dev := &pjlLockDevice{pin: "4", locked: true}
	p, _ := newTestPJL(t, dev.handle, WithChunkSize(1))

	pin, removed, err := p.crackPIN([]string{"1", "2", "3", "4", "5"})
	if err != nil {
		t.Fatal(err)
	}
	if !removed || pin != "4" {
		t.Fatalf("got pin %q removed %v, want exact pin 4", pin, removed)
	}
}

func TestCrackPINMiss(t *testing.T) {
	dev := &pjlLockDevice{pin: "9999", locked: true}
	p, _ := newTestPJL(t, dev.handle, WithChunkSize(2))

	pin, removed, err := p.crackPIN([]string{"1", "2", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if removed || pin != "" {
		t.Fatalf("got pin %q removed %v, want no hit", pin, removed)
	}
}

func TestUnlockKnownPIN(t *testing.T) {
	dev := &pjlLockDevice{pin: "1234", locked: true}
	p, _ := newTestPJL(t, dev.handle)

	status, pin, err := p.Unlock(1234)
	if err != nil {
		t.Fatal(err)
	}
	if pin != "1234" {
		t.Fatalf("pin = %q", pin)
	}
	if status.Password != "DISABLED" {
		t.Fatalf("status = %+v", status)
	}
}

func TestUnlockUnsupportedDevice(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		if bytes.Contains(job, []byte("DINQUIRE PASSWORD")) {
			return "\"?\"\r\n"
		}
		return ""
	})
	_, _, err := p.Unlock(-1)
	if !IsUnsupported(err) {
		t.Fatalf("err = %v, want unsupported", err)
	}
}

func TestPJLStatusParsing(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		return "ready\r\n\f@PJL INFO STATUS\r\nCODE=10001\r\nDISPLAY=\"Ready\"\r\nONLINE=TRUE\r\n"
	}, WithStatus())

	reply, err := p.cmd("@PJL INFO ID")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(reply, []byte("INFO STATUS")) {
		t.Fatalf("status block not stripped: %q", reply)
	}
	if !strings.Contains(string(reply), "ready") {
		t.Fatalf("payload lost: %q", reply)
	}
}

func TestPJLVolumes(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		if !bytes.Contains(job, []byte("INFO FILESYS")) {
			return ""
		}
		return "@PJL INFO FILESYS [2 TABLE]\r\n" +
			"\tVOLUME\tTOTAL SIZE\tFREE SPACE\tLOCATION\r\n" +
			"\t0:\t5105664\t2655232\tRAM\r\n" +
			"\t1:\t10211328\t5310464\tDISK\r\n"
	})
	vols, err := p.Volumes()
	if err != nil {
		t.Fatal(err)
	}
	if len(vols) != 2 || vols[0] != "0:/" || vols[1] != "1:/" {
		t.Fatalf("vols = %v", vols)
	}
}
