package prex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	raw := `
target: 192.168.1.5
mode: pjl
timeout_ms: 2500
volume: "1:"
chunk_size: 100
feedback: crippled
status: true
fuzz: true
jump:
  addr: bastion:22
  user: operator
fuzzer:
  volumes: ["", "0:/"]
  traversals: [".."]
`
	path := filepath.Join(t.TempDir(), "prex.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if fc.Target != "192.168.1.5" || fc.Mode != "pjl" {
		t.Errorf("target/mode = %q/%q", fc.Target, fc.Mode)
	}
	if fc.Jump.Addr != "bastion:22" || fc.Jump.User != "operator" {
		t.Errorf("jump = %+v", fc.Jump)
	}
	if fc.Fuzzer == nil || len(fc.Fuzzer.Volumes) != 2 {
		t.Errorf("fuzzer catalog = %+v", fc.Fuzzer)
	}

	opts, err := fc.Options()
	if err != nil {
		t.Fatal(err)
	}
	s := newTestSession(t, &fakeTransport{}, opts...)
	if s.config.Timeout != 2500*time.Millisecond {
		t.Errorf("timeout = %v", s.config.Timeout)
	}
	if s.vol != "1:/" {
		t.Errorf("vol = %q", s.vol)
	}
	if s.config.ChunkSize != 100 {
		t.Errorf("chunk size = %d", s.config.ChunkSize)
	}
	if s.config.Feedback != FeedbackCrippled {
		t.Errorf("feedback = %v", s.config.Feedback)
	}
	if !s.config.Status || !s.config.Fuzz {
		t.Errorf("flags = %+v", s.config)
	}
}

func TestLoadConfigBadFeedback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prex.yaml")
	if err := os.WriteFile(path, []byte("feedback: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fc.Options(); err == nil {
		t.Fatal("expected an error for an unknown feedback mode")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Timeout != 10*time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
	if c.ChunkSize != 500 {
		t.Errorf("chunk size = %d", c.ChunkSize)
	}
	if c.Feedback != FeedbackAuto {
		t.Errorf("feedback = %v", c.Feedback)
	}
}
