package prex

import (
	"bytes"
	"encoding/json"
	"path"
	"regexp"
	"strconv"
	"time"
)

// PCL drives a device through PCL 5. PCL has no filesystem, so one is
// faked on top of permanent macros:
//
//	macro id 31337        superblock (serialized metadata)
//	macro ids 10000..19999  file content
//
// Each file byte is stored as an echo command inside a macro; running
// the macro plays the bytes back. Echo values 0..255 carry data,
// negative values delimit jobs. The superblock is a JSON table mapping
// file names to macro id, size and timestamp.
type PCL struct {
	*Session
}

// NewPCL starts PCL on an open session.
func NewPCL(s *Session) *PCL {
	return &PCL{Session: s}
}

// Command frames payload as one PCL job and collects the echo reply.
// The header leaves a trailing ESC, so payload starts mid-sequence.
func (p *PCL) Command(payload []byte, wait bool) ([]byte, error) {
	p.capture(payload)
	token := p.mintNumericToken(payload)

	var job bytes.Buffer
	job.WriteString(UEL)
	job.WriteString(pclHeader)
	job.Write(payload)
	job.WriteString(ESC + "*s" + token + "X")
	job.WriteString(UEL)

	if err := p.send(job.Bytes()); err != nil {
		return p.recover(err)
	}
	if !wait {
		return nil, nil
	}

	pattern := regexp.MustCompile(`ECHO ` + regexp.QuoteMeta(token))
	reply, err := p.transport.Recv(pattern, p.Timeout())
	if err != nil {
		return p.recover(err)
	}
	// engines prepend a language banner
	return pclScrub.ReplaceAll(reply, nil), nil
}

// --------------------------------------------------------------------
// macro primitives

// pclfsEntry is one superblock row: macro id, size and mtime, all kept
// as strings to survive JSON round trips with other implementations.
type pclfsEntry [3]string

func (e pclfsEntry) id() string { return e[0] }

func (e pclfsEntry) size() int64 {
	n, err := strconv.ParseInt(e[1], 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func (e pclfsEntry) mtime() time.Time {
	n, err := strconv.ParseInt(e[2], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// superblock loads the metadata table. A missing or corrupt superblock
// reads as an empty filesystem.
func (p *PCL) superblock() map[string]pclfsEntry {
	raw, err := p.retrieveData(strconv.Itoa(Superblock))
	if err != nil || len(raw) == 0 {
		return map[string]pclfsEntry{}
	}
	fs := map[string]pclfsEntry{}
	if jerr := json.Unmarshal(raw, &fs); jerr != nil {
		return map[string]pclfsEntry{}
	}
	return fs
}

// updateSuperblock persists the metadata table.
func (p *PCL) updateSuperblock(fs map[string]pclfsEntry) error {
	raw, err := json.Marshal(fs)
	if err != nil {
		return WrapError(ErrProtocol, "encode superblock", err)
	}
	return p.defineMacro(strconv.Itoa(Superblock), raw)
}

// retrieveData runs a macro and decodes the echoed bytes.
func (p *PCL) retrieveData(id string) ([]byte, error) {
	var job bytes.Buffer
	job.WriteString("&f" + id + "Y")    // set macro id
	job.WriteString(ESC + "&f2X")       // execute macro
	reply, err := p.Command(job.Bytes(), true)
	if err != nil {
		return nil, err
	}
	return DecodeEchoData(reply), nil
}

// defineMacro stores data as a permanent macro, one echo command per
// byte.
func (p *PCL) defineMacro(id string, data []byte) error {
	var job bytes.Buffer
	job.WriteString("&f" + id + "Y") // set macro id
	job.WriteString(ESC + "&f0X")    // start macro
	for _, b := range data {
		job.WriteString(ESC + "*s" + strconv.Itoa(int(b)) + "X")
	}
	job.WriteString(ESC + "&f1X")  // end macro
	job.WriteString(ESC + "&f10X") // make permanent
	_, err := p.Command(job.Bytes(), false)
	return err
}

// deleteMacro removes a macro from the device.
func (p *PCL) deleteMacro(id string) error {
	var job bytes.Buffer
	job.WriteString("&f" + id + "Y") // set macro id
	job.WriteString(ESC + "&f8X")    // delete macro
	_, err := p.Command(job.Bytes(), false)
	return err
}

// IDList returns the macro ids present in the download area.
func (p *PCL) IDList() ([]int, error) {
	var job bytes.Buffer
	job.WriteString("*s4T")       // location type: downloaded
	job.WriteString(ESC + "*s0U") // location unit: all
	job.WriteString(ESC + "*s1I") // inquire entity: macros
	reply, err := p.Command(job.Bytes(), true)
	if err != nil {
		return nil, err
	}
	return ParseIDList(reply), nil
}

// freeID picks the lowest pool id not in use.
func freeID(used []int) (int, bool) {
	taken := map[int]bool{}
	for _, id := range used {
		taken[id] = true
	}
	for id := BlockMin; id <= BlockMax; id++ {
		if !taken[id] {
			return id, true
		}
	}
	return 0, false
}

// --------------------------------------------------------------------
// filesystem

// Capabilities reports the virtual filesystem surface: flat, no
// directories, no append.
func (p *PCL) Capabilities() Capability {
	return CapList | CapRead | CapWrite | CapDelete
}

// List returns the virtual filesystem contents. The filesystem is
// flat, so dir is ignored.
func (p *PCL) List(dir string) ([]DirEntry, error) {
	fs := p.superblock()
	entries := make([]DirEntry, 0, len(fs))
	for name, e := range fs {
		id, _ := strconv.Atoi(e.id())
		entries = append(entries, DirEntry{
			Name:    name,
			Size:    e.size(),
			MacroID: id,
			MTime:   e.mtime(),
		})
	}
	sortEntries(entries)
	return entries, nil
}

// Exists returns the recorded size of a file, or Nonexistent.
func (p *PCL) Exists(name string) int64 {
	if e, ok := p.superblock()[path.Base(name)]; ok {
		return e.size()
	}
	return Nonexistent
}

// Read plays back the macro holding a file.
func (p *PCL) Read(name string) ([]byte, error) {
	name = path.Base(name)
	e, ok := p.superblock()[name]
	if !ok {
		return nil, NewPathError(ErrNotFound, "no such file", name)
	}
	return p.retrieveData(e.id())
}

// Write stores data under name. An existing file keeps its macro id;
// a new file takes the lowest free id in the pool.
func (p *PCL) Write(name string, data []byte) error {
	name = path.Base(name)
	fs := p.superblock()

	var id string
	if e, ok := fs[name]; ok {
		id = e.id()
	} else {
		used, err := p.IDList()
		if err != nil {
			return err
		}
		free, ok := freeID(used)
		if !ok {
			return NewError(ErrDevice, "out of macro slots")
		}
		id = strconv.Itoa(free)
	}
	p.log.Debugf("using macro id #%s", id)

	fs[name] = pclfsEntry{id, strconv.Itoa(len(data)), strconv.FormatInt(time.Now().Unix(), 10)}
	if err := p.updateSuperblock(fs); err != nil {
		return err
	}
	return p.defineMacro(id, data)
}

// Append is not possible on macro storage; a macro only replays whole.
func (p *PCL) Append(name string, data []byte) error {
	return NewError(ErrUnsupported, "append not supported on pclfs")
}

// Delete removes a file and its backing macro.
func (p *PCL) Delete(name string) error {
	name = path.Base(name)
	fs := p.superblock()
	e, ok := fs[name]
	if !ok {
		return NewPathError(ErrNotFound, "no such file", name)
	}
	delete(fs, name)
	if err := p.updateSuperblock(fs); err != nil {
		return err
	}
	return p.deleteMacro(e.id())
}

// Mkdir is not possible; the filesystem is flat.
func (p *PCL) Mkdir(dir string) error {
	return NewError(ErrUnsupported, "directories not supported on pclfs")
}

// Walk visits every file. The filesystem is flat, so there is nothing
// to descend into.
func (p *PCL) Walk(dir string, fn WalkFunc) error {
	return walkFS(p, dir, fn, func(DirEntry) bool { return false })
}

// --------------------------------------------------------------------
// device information

// pclEntities maps info categories to inquire entity codes.
var pclEntities = map[string]string{
	"fonts":    "0",
	"macros":   "1",
	"patterns": "2",
	"symbols":  "3",
	"extended": "4",
}

// pclLocations maps location type codes to their names.
var pclLocations = map[string]string{
	"3": "internal",
	"4": "downloaded",
	"5": "cartridge",
	"7": "rom",
}

// InfoCategories lists the categories Info accepts.
func InfoCategories() []string {
	return []string{"fonts", "macros", "patterns", "symbols", "extended"}
}

// Info inquires a resource category across all storage locations and
// returns the readback per location name.
func (p *PCL) Info(category string) (map[string]string, error) {
	entity, ok := pclEntities[category]
	if !ok {
		return nil, NewError(ErrUnsupported, "unknown info category: "+category)
	}
	out := map[string]string{}
	for code, location := range pclLocations {
		var job bytes.Buffer
		job.WriteString("*s" + code + "T")         // location type
		job.WriteString(ESC + "*s0U")              // location unit
		job.WriteString(ESC + "*s" + entity + "I") // inquire entity
		reply, err := p.Command(job.Bytes(), true)
		if err != nil {
			return out, err
		}
		out[location] = string(bytes.TrimSpace(reply))
	}
	return out, nil
}

// Free returns the free memory readback.
func (p *PCL) Free() (string, error) {
	reply, err := p.Command([]byte("*s1M"), true)
	return string(bytes.TrimSpace(reply)), err
}

// Selftest prints the engine self-test page.
func (p *PCL) Selftest() error {
	_, err := p.Command([]byte("z"), false)
	return err
}
