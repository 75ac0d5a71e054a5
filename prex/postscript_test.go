package prex

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// newTestPS answers every waiting command through handler, appending
// the job's print token the way a live interpreter would.
func newTestPS(t *testing.T, handler func(job []byte) string, opts ...Option) (*PostScript, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	ft.onSend = func(job []byte) {
		var body string
		if handler != nil {
			body = handler(job)
		}
		token := jobToken(job, psJobToken)
		if token == "" {
			return
		}
		ft.push(body + token + "\r\n")
	}
	s := newTestSession(t, ft, opts...)
	ps, err := NewPostScript(s)
	if err != nil {
		t.Fatal(err)
	}
	return ps, ft
}

func TestProbeFeedback(t *testing.T) {
	// device models: a sane channel answers = and ==, a crippled one
	// only answers == when the job rewired it to write %stdout, and a
	// mute one never answers
	tests := []struct {
		name   string
		device func(job []byte) string
		want   Feedback
	}{
		{"normal", func([]byte) string { return "x1\r\nx2\r\n" }, FeedbackNormal},
		{"crippled", func(job []byte) string {
			if bytes.Contains(job, []byte("(%stdout) (w) file")) {
				return "x2\r\n"
			}
			return ""
		}, FeedbackCrippled},
		{"none", func([]byte) string { return "" }, FeedbackNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, _ := newTestPS(t, tt.device)
			if ps.Feedback() != tt.want {
				t.Fatalf("feedback = %v, want %v", ps.Feedback(), tt.want)
			}
		})
	}
}

// The probe must ship the output hack itself: without it a crippled
// device cannot answer at all and would pass for a mute one.
func TestProbeCarriesOutputHack(t *testing.T) {
	ps, ft := newTestPS(t, func([]byte) string { return "x1\r\nx2\r\n" })
	if len(ft.sends) == 0 {
		t.Fatal("no probe sent")
	}
	probe := ft.sends[0]
	if !bytes.Contains(probe, []byte("(%stdout) (w) file")) {
		t.Fatalf("probe lacks the output hack: %q", probe)
	}
	if !bytes.Contains(probe, []byte("(x1) = (x2) ==")) ||
		!bytes.Contains(probe, []byte("} stopped")) {
		t.Fatalf("probe not in crippled framing: %q", probe)
	}
	if ps.Feedback() != FeedbackNormal {
		t.Fatalf("feedback = %v", ps.Feedback())
	}
}

func TestFeedbackOverrideSkipsProbe(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestSession(t, ft, WithFeedback(FeedbackNormal))
	ps, err := NewPostScript(s)
	if err != nil {
		t.Fatal(err)
	}
	if ps.Feedback() != FeedbackNormal {
		t.Fatalf("feedback = %v", ps.Feedback())
	}
	if len(ft.sends) != 0 {
		t.Fatalf("probe was sent despite override")
	}
}

func TestCrippledWrapsCommands(t *testing.T) {
	ps, ft := newTestPS(t, nil, WithFeedback(FeedbackCrippled))
	if _, err := ps.cmd("product print"); err != nil {
		t.Fatal(err)
	}
	job := ft.lastSend()
	if !bytes.Contains(job, []byte("{product print} stopped")) {
		t.Fatalf("payload not wrapped: %q", job)
	}
	if !bytes.Contains(job, []byte("(%stdout) (w) file")) {
		t.Fatalf("output hack missing: %q", job)
	}
}

// An interpreter error discards the reply and lands on the session.
func TestInterpreterErrorDiscardsReply(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		if bytes.Contains(job, []byte("bogusop")) {
			return "%%[ Error: undefined; OffendingCommand: bogusop ]%%\r\n"
		}
		return "x1\r\n"
	})
	reply, err := ps.cmd("bogusop")
	if err != nil {
		t.Fatal(err)
	}
	if reply != nil {
		t.Fatalf("reply = %q, want discarded", reply)
	}
	lastErr := ps.LastError()
	if lastErr == nil || !strings.Contains(lastErr.Message, "undefined") {
		t.Fatalf("error = %v", lastErr)
	}
}

func TestStatusMessageStripped(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		if bytes.Contains(job, []byte("product")) {
			return "%%[ PrinterError: out of paper ]%%\r\nLaserJet 4250\r\n"
		}
		return "x1\r\n"
	})
	id, err := ps.ID()
	if err != nil {
		t.Fatal(err)
	}
	if id != "LaserJet 4250" {
		t.Fatalf("ID = %q", id)
	}
	if ps.LastError() != nil {
		t.Fatalf("status message treated as error: %v", ps.LastError())
	}
}

func TestPSExists(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		switch {
		case bytes.Contains(job, []byte("(0:/config) status")):
			return "1696095600\r\n1696091000\r\n2048\r\n1\r\n"
		case bytes.Contains(job, []byte("(0:/old) status")):
			return "true\r\n"
		case bytes.Contains(job, []byte(") status")):
			return "false\r\n"
		}
		return "x1\r\n"
	}, WithVolume("0:"))

	if got := ps.Exists("config"); got != 2048 {
		t.Errorf("Exists(config) = %d, want 2048", got)
	}
	if got := ps.Exists("old"); got != FileExists {
		t.Errorf("Exists(old) = %d, want FileExists", got)
	}
	if got := ps.Exists("nothere"); got != Nonexistent {
		t.Errorf("Exists(nothere) = %d, want Nonexistent", got)
	}
}

func TestDirlistFallsBackToFlat(t *testing.T) {
	var patterns []string
	ps, _ := newTestPS(t, func(job []byte) string {
		if !bytes.Contains(job, []byte("filenameforall")) {
			return "x1\r\n"
		}
		if bytes.Contains(job, []byte("**")) {
			patterns = append(patterns, "**")
			return "" // recursive wildcard rejected
		}
		patterns = append(patterns, "*")
		return "0:/config\r\n0:/config\r\n0:/banner\r\n"
	}, WithVolume("0:"))

	names, err := ps.dirlist("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 2 || patterns[0] != "**" || patterns[1] != "*" {
		t.Fatalf("patterns tried: %v", patterns)
	}
	if len(names) != 2 || names[0] != "0:/banner" || names[1] != "0:/config" {
		t.Fatalf("names = %v, want deduplicated and sorted", names)
	}
}

func TestPSListClassifiesDirs(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		switch {
		case bytes.Contains(job, []byte("filenameforall")):
			return "0:/webServer/home/index.html\r\n0:/config\r\n"
		case bytes.Contains(job, []byte("(0:/config) status")):
			return "1696095600\r\n1696091000\r\n384\r\n1\r\n"
		case bytes.Contains(job, []byte(") status")):
			return "false\r\n"
		}
		return "x1\r\n"
	}, WithVolume("0:"))

	entries, err := ps.List("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	// dirs sort first
	if entries[0].Name != "webServer" || !entries[0].Dir {
		t.Errorf("entry 0 = %+v, want dir webServer", entries[0])
	}
	if entries[1].Name != "config" || entries[1].Dir || entries[1].Size != 384 {
		t.Errorf("entry 1 = %+v, want file config size 384", entries[1])
	}
}

func TestPSWriteEscapesData(t *testing.T) {
	ps, ft := newTestPS(t, nil, WithVolume("0:"))
	if err := ps.Write("new(file)", []byte{0x00, 0x41, 0xff}); err != nil {
		t.Fatal(err)
	}
	job := ft.lastSend()
	if !bytes.Contains(job, []byte(`(0:/new\(file\)) (w+) file`)) {
		t.Fatalf("path not escaped: %q", job)
	}
	if !bytes.Contains(job, []byte(`(\000\101\377) writestring`)) {
		t.Fatalf("data not octal-escaped: %q", job)
	}
}

func TestPSReadMissingFile(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		if bytes.Contains(job, []byte(") status")) {
			return "false\r\n"
		}
		return "x1\r\n"
	}, WithVolume("0:"))
	if _, err := ps.Read("nothere"); !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestGlobalAndSuperFraming(t *testing.T) {
	ps, ft := newTestPS(t, nil, WithFeedback(FeedbackNormal))

	if _, err := ps.GlobalCommand([]byte("payload"), CmdOptions{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(ft.lastSend(), []byte("true 0 startjob pop\npayload")) {
		t.Fatalf("global framing: %q", ft.lastSend())
	}

	if _, err := ps.SuperCommand([]byte("payload"), CmdOptions{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(ft.lastSend(), []byte("{payload} 1183615869 internaldict /superexec get exec")) {
		t.Fatalf("super framing: %q", ft.lastSend())
	}
}

func TestUnlockVerifiesReadback(t *testing.T) {
	locked := true
	ps, _ := newTestPS(t, func(job []byte) string {
		if bytes.Contains(job, []byte("setsystemparams")) {
			if bytes.Contains(job, []byte("/Password (secret)")) {
				locked = false
				return "false\r\n"
			}
			return "true\r\n"
		}
		return "x1\r\n"
	})

	if err := ps.Unlock("wrong"); err == nil {
		t.Fatal("expected unlock with the wrong password to fail")
	}
	if err := ps.Unlock("secret"); err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Fatal("password not cleared")
	}
}

func TestPSDicts(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		switch {
		case bytes.Contains(job, []byte("systemdict\ndup rcheck")):
			return "r-x 1035 1035\r\n"
		case bytes.Contains(job, []byte("userdict\ndup rcheck")):
			return "rw- 12 200\r\n"
		case bytes.Contains(job, []byte("rcheck")):
			return "" // dict unknown to this interpreter
		}
		return "x1\r\n"
	})
	dicts, err := ps.Dicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(dicts) != 2 {
		t.Fatalf("dicts = %+v", dicts)
	}
	if dicts[0].Name != "systemdict" || dicts[0].Perms != "r-x" || dicts[0].Len != 1035 {
		t.Errorf("entry 0 = %+v", dicts[0])
	}
	if dicts[1].Name != "userdict" || dicts[1].Perms != "rw-" || dicts[1].Max != 200 {
		t.Errorf("entry 1 = %+v", dicts[1])
	}
}

func TestDumpDict(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		switch {
		case bytes.Contains(job, []byte("(statusdict) where")):
			return `{"jobname": {"type": "stringtype", "perms": "rw-", "value": ""},` + "\r\n}"
		case bytes.Contains(job, []byte("(nodict) where")):
			return "<nonexistent>"
		}
		return "x1\r\n"
	})

	dump, err := ps.DumpDict("statusdict")
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]map[string]string
	if err := json.Unmarshal(dump, &decoded); err != nil {
		t.Fatalf("dump is not valid JSON after cleanup: %v\n%s", err, dump)
	}
	if decoded["jobname"]["type"] != "stringtype" {
		t.Fatalf("decoded = %v", decoded)
	}

	if _, err := ps.DumpDict("nodict"); !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestPSResources(t *testing.T) {
	calls := 0
	ps, _ := newTestPS(t, func(job []byte) string {
		switch {
		case bytes.Contains(job, []byte("/Category resourceforall")):
			calls++
			return "Font\r\nEncoding\r\n"
		case bytes.Contains(job, []byte("/Font resourceforall")):
			return "Helvetica\r\nCourier\r\n"
		}
		return "x1\r\n"
	})

	cats, err := ps.ResourceCategories()
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 2 || cats[0] != "Encoding" || cats[1] != "Font" {
		t.Fatalf("cats = %v", cats)
	}
	if _, err := ps.ResourceCategories(); err != nil || calls != 1 {
		t.Fatalf("categories probed %d times", calls)
	}

	fonts, err := ps.Resource("Font")
	if err != nil {
		t.Fatal(err)
	}
	if len(fonts) != 2 || fonts[0] != "Courier" || fonts[1] != "Helvetica" {
		t.Fatalf("fonts = %v", fonts)
	}
}

func TestPSKnown(t *testing.T) {
	ps, _ := newTestPS(t, func(job []byte) string {
		if !bytes.Contains(job, []byte("known")) {
			return "x1\r\n"
		}
		return "quit: true\r\nsuperexec: false\r\n"
	})
	got, err := ps.Known([]string{"quit", "superexec"})
	if err != nil {
		t.Fatal(err)
	}
	if !got["quit"] || got["superexec"] {
		t.Fatalf("got %v", got)
	}
}
