package prex

import (
	"sort"
	"strings"
	"time"
)

// Capability is a bitset of filesystem operations a language supports
// on a given device.
type Capability uint16

const (
	CapList Capability = 1 << iota
	CapRead
	CapWrite
	CapAppend
	CapDelete
	CapMkdir
	CapFormat
)

// Has reports whether every capability in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// DirEntry describes one name in a remote directory listing.
type DirEntry struct {
	// Name is the bare entry name, no path components.
	Name string

	// Dir marks directories.
	Dir bool

	// Size is the file size in bytes, or -1 when the device did not
	// report one. Entries without a size are still files.
	Size int64

	// MacroID is the backing macro slot on macro-backed filesystems,
	// zero otherwise.
	MacroID int

	// MTime is the modification time, zero when the language does not
	// report one.
	MTime time.Time
}

// WalkFunc is called once per entry during a recursive walk. Returning
// an error stops the walk.
type WalkFunc func(path string, entry DirEntry) error

// FileSystem is the device filesystem surface a printer language
// exposes. Paths are resolved against the session volume and working
// directory. Exists returns a size sentinel instead of an error: a
// missing file is an answer, not a failure.
type FileSystem interface {
	Capabilities() Capability
	List(dir string) ([]DirEntry, error)
	Exists(path string) int64
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Append(path string, data []byte) error
	Delete(path string) error
	Mkdir(dir string) error
	Walk(dir string, fn WalkFunc) error
}

// walkFS drives a recursive walk over List. The descend predicate
// decides which entries to recurse into; devices that hide the DIR
// flag need to descend into size-unknown entries too.
func walkFS(fs FileSystem, dir string, fn WalkFunc, descend func(DirEntry) bool) error {
	entries, err := fs.List(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		p := joinRemote(dir, e.Name)
		if err := fn(p, e); err != nil {
			return err
		}
		if descend(e) {
			if err := walkFS(fs, p, fn, descend); err != nil {
				return err
			}
		}
	}
	return nil
}

// joinRemote joins a directory and an entry name with the remote
// separator.
func joinRemote(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimSuffix(dir, SEP) + SEP + name
}

// sortEntries orders a listing directories-first, then by name.
func sortEntries(entries []DirEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Dir != entries[j].Dir {
			return entries[i].Dir
		}
		return entries[i].Name < entries[j].Name
	})
}
