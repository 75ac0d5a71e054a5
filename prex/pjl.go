package prex

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	pjlEchoedCmd  = regexp.MustCompile(`^\x04?\x00*@PJL[^\n]*\n?`)
	pjlStatusTail = regexp.MustCompile(`(?s)\f?@PJL INFO STATUS.*`)
	pjlVarName    = regexp.MustCompile(`(?m)^\s*([^=\r\n]+)=`)
	pjlNVAddress  = regexp.MustCompile(`ADDRESS\s*=\s*(\d+)`)
	pjlNVData     = regexp.MustCompile(`DATA\s*=\s*(\d+)`)
)

// PJL drives a device through the Printer Job Language. It exposes the
// real mass storage filesystem plus the environment variable and
// device control surface.
type PJL struct {
	*Session
}

// NewPJL starts PJL on an open session. Unsolicited status messages
// are disabled up front so they cannot interleave with replies.
func NewPJL(s *Session) (*PJL, error) {
	p := &PJL{Session: s}
	_, err := p.Command([]byte("@PJL USTATUSOFF"), CmdOptions{NoWait: true})
	return p, err
}

// Command frames payload as one PJL job and collects the reply. The
// job ends with an ECHO of a fresh token; the reply is everything the
// device sent before echoing it back.
func (p *PJL) Command(payload []byte, o CmdOptions) ([]byte, error) {
	p.capture(payload)
	token := p.mintToken(payload)
	status := p.config.Status && !o.NoWait

	var job bytes.Buffer
	job.WriteString(UEL)
	job.Write(payload)
	job.WriteString(EOL)
	if status {
		job.WriteString("@PJL INFO STATUS" + EOL)
	}
	if !o.NoWait {
		job.WriteString("@PJL ECHO " + token + EOL + EOL)
	}
	job.WriteString(UEL)

	if err := p.send(job.Bytes()); err != nil {
		return p.recover(err)
	}
	if o.NoWait {
		return nil, nil
	}

	pattern := regexp.MustCompile(`(@PJL ECHO\s+)?` + regexp.QuoteMeta(token))
	reply, err := p.transport.Recv(pattern, p.effTimeout(o.TimeoutFactor))
	if err != nil {
		return p.recover(err)
	}

	if status {
		if block := pjlStatusTail.Find(reply); block != nil {
			p.reportStatus(ParseStatus(block))
			reply = pjlStatusTail.ReplaceAll(reply, nil)
		}
	}
	if !o.KeepEcho {
		// most interpreters echo the first command line back
		if loc := pjlEchoedCmd.FindIndex(reply); loc != nil {
			reply = reply[loc[1]:]
		}
	}
	p.fileErrors(reply)
	return reply, nil
}

func (p *PJL) cmd(s string) ([]byte, error) {
	return p.Command([]byte(s), CmdOptions{})
}

func (p *PJL) cmdNoWait(s string) error {
	_, err := p.Command([]byte(s), CmdOptions{NoWait: true})
	return err
}

func (p *PJL) reportStatus(msgs []StatusMessage) {
	for _, m := range msgs {
		text := StatusText(m.Code)
		if text == "" {
			text = "unknown status"
		}
		entry := p.log.WithField("code", m.Code)
		if m.Display != "" {
			entry = entry.WithField("display", m.Display)
		}
		entry.Warn(text)
	}
}

func (p *PJL) fileErrors(reply []byte) {
	for _, code := range ParseFileErrors(reply) {
		text := StatusText(code)
		if text == "" {
			text = "unknown file system error"
		}
		p.deviceError(fmt.Sprintf("file system error %s: %s", code, text))
	}
}

// --------------------------------------------------------------------
// filesystem

// Capabilities reports the full PJL filesystem surface.
func (p *PJL) Capabilities() Capability {
	return CapList | CapRead | CapWrite | CapAppend | CapDelete | CapMkdir | CapFormat
}

// List returns the contents of a remote directory. A missing directory
// lists as empty; the device reports it through FILEERROR instead.
func (p *PJL) List(dir string) ([]DirEntry, error) {
	reply, err := p.cmd(`@PJL FSDIRLIST NAME="` + p.rpath(dir) + `" ENTRY=1 COUNT=65535`)
	if err != nil {
		return nil, err
	}
	entries := ParseDirList(reply)
	sortEntries(entries)
	return entries, nil
}

// Exists returns the file size, FileExists for directories, or
// Nonexistent.
func (p *PJL) Exists(path string) int64 {
	reply, err := p.Command([]byte(`@PJL FSQUERY NAME="`+p.rpath(path)+`"`), CmdOptions{KeepEcho: true})
	if err != nil {
		return Nonexistent
	}
	return ParseFSQuery(reply)
}

// Read downloads a remote file.
func (p *PJL) Read(path string) ([]byte, error) {
	size := p.Exists(path)
	if size == Nonexistent {
		return nil, NewPathError(ErrNotFound, "no such file", path)
	}
	if size == FileExists {
		return nil, NewPathError(ErrDevice, "not a file", path)
	}
	payload := fmt.Sprintf(`@PJL FSUPLOAD NAME="%s" OFFSET=0 SIZE=%d`, p.rpath(path), size)
	reply, err := p.Command([]byte(payload), CmdOptions{Binary: true})
	if err != nil {
		return nil, err
	}
	if int64(len(reply)) > size {
		reply = reply[:size]
	}
	return reply, nil
}

// Write uploads data to a remote file, replacing it.
func (p *PJL) Write(path string, data []byte) error {
	var job bytes.Buffer
	fmt.Fprintf(&job, `@PJL FSDOWNLOAD FORMAT:BINARY SIZE=%d NAME="%s"`, len(data), p.rpath(path))
	job.WriteString(EOL)
	job.Write(data)
	_, err := p.Command(job.Bytes(), CmdOptions{NoWait: true})
	return err
}

// Append appends data to a remote file.
func (p *PJL) Append(path string, data []byte) error {
	var job bytes.Buffer
	fmt.Fprintf(&job, `@PJL FSAPPEND FORMAT:BINARY SIZE=%d NAME="%s"`, len(data), p.rpath(path))
	job.WriteString(EOL)
	job.Write(data)
	_, err := p.Command(job.Bytes(), CmdOptions{NoWait: true})
	return err
}

// Delete removes a remote file. Deleting a missing file surfaces the
// device's FILEERROR through LastError.
func (p *PJL) Delete(path string) error {
	_, err := p.cmd(`@PJL FSDELETE NAME="` + p.rpath(path) + `"`)
	return err
}

// Mkdir creates a remote directory.
func (p *PJL) Mkdir(dir string) error {
	_, err := p.cmd(`@PJL FSMKDIR NAME="` + p.rpath(dir) + `"`)
	return err
}

// Format initializes the filesystem on the current volume, destroying
// all user data.
func (p *PJL) Format() error {
	vol := p.vol
	if len(vol) >= 2 {
		vol = vol[:2]
	}
	return p.cmdNoWait(`@PJL FSINIT VOLUME="` + vol + `"`)
}

// Walk lists the tree under dir recursively. Devices that hide the DIR
// flag list directories as sizeless files, so size-unknown entries are
// descended into as well.
func (p *PJL) Walk(dir string, fn WalkFunc) error {
	return walkFS(p, dir, fn, func(e DirEntry) bool {
		return e.Dir || e.Size < 0
	})
}

// Volumes lists the filesystem volumes the device reports.
func (p *PJL) Volumes() ([]string, error) {
	reply, err := p.cmd("@PJL INFO FILESYS")
	if err != nil {
		return nil, err
	}
	var vols []string
	lines := strings.Split(string(reply), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue // header row
		}
		vols = append(vols, line[:1]+":"+SEP)
	}
	return vols, nil
}

// --------------------------------------------------------------------
// device information and environment

// Info queries a status readback category, e.g. "id" or "filesys".
func (p *PJL) Info(category string) (string, error) {
	reply, err := p.cmd("@PJL INFO " + strings.ToUpper(category))
	if err != nil {
		return "", err
	}
	return strings.Trim(string(reply), "\r\n\x00\f "), nil
}

// ID returns the device model string.
func (p *PJL) ID() (string, error) {
	id, err := p.Info("id")
	return strings.Trim(id, `"`), err
}

// Env returns the raw environment variable listing.
func (p *PJL) Env() (string, error) {
	return p.Info("variables")
}

// EnvNames returns the names of all environment variables.
func (p *PJL) EnvNames() ([]string, error) {
	env, err := p.Env()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range pjlVarName.FindAllStringSubmatch(env, -1) {
		names = append(names, strings.TrimSpace(m[1]))
	}
	return names, nil
}

// PrintEnv returns the listing lines for one environment variable.
func (p *PJL) PrintEnv(name string) (string, error) {
	env, err := p.Env()
	if err != nil {
		return "", err
	}
	var out []string
	for _, line := range strings.Split(env, "\n") {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), strings.ToUpper(name)) {
			out = append(out, strings.TrimRight(line, "\r"))
		}
	}
	return strings.Join(out, "\n"), nil
}

// Inquire reads the current value of an environment variable.
func (p *PJL) Inquire(name string) (string, error) {
	reply, err := p.cmd("@PJL INQUIRE " + name)
	if err != nil {
		return "", err
	}
	return ParseValue(reply), nil
}

// DInquire reads the default value of an environment variable.
func (p *PJL) DInquire(name string) (string, error) {
	reply, err := p.cmd("@PJL DINQUIRE " + name)
	if err != nil {
		return "", err
	}
	return ParseValue(reply), nil
}

// Set writes an environment variable, both current and default value.
// The write is wrapped in the HP service mode so write-protected
// variables take too.
func (p *PJL) Set(name, value string) error {
	kv := name + "=" + value
	return p.cmdNoWait("@PJL SET SERVICEMODE=HPBOISEID" + EOL +
		"@PJL DEFAULT " + kv + EOL +
		"@PJL SET " + kv + EOL +
		"@PJL SET SERVICEMODE=EXIT")
}

// SetPagecount overwrites the page counter on devices that keep it in
// an environment variable.
func (p *PJL) SetPagecount(n int) error {
	return p.Set("PAGES", strconv.Itoa(n))
}

// Display sets the ready message on the operator panel.
func (p *PJL) Display(msg string) error {
	return p.cmdNoWait(`@PJL RDYMSG DISPLAY="` + msg + `"`)
}

// Offline takes the device offline showing msg. Nobody can print or
// reconnect until an operator clears it.
func (p *PJL) Offline(msg string) error {
	return p.cmdNoWait(`@PJL OPMSG DISPLAY="` + msg + `"`)
}

// Restart reboots the device via a PML command embedded in PJL.
// HP-only; other vendors want SNMP.
func (p *PJL) Restart() error {
	return p.cmdNoWait(`@PJL DMCMD ASCIIHEX="040006020501010301040104"`)
}

// Reset restores factory defaults. Network settings may reset too,
// cutting off the session for good.
func (p *PJL) Reset() error {
	if err := p.cmdNoWait(`@PJL DMCMD ASCIIHEX="040006020501010301040106"`); err != nil {
		return err
	}
	// ancient laserjets
	if err := p.cmdNoWait("@PJL SET SERVICEMODE=HPBOISEID" + EOL +
		"@PJL CLEARNVRAM" + EOL +
		"@PJL NVRAMINIT" + EOL +
		"@PJL INITIALIZE" + EOL +
		"@PJL SET SERVICEMODE=EXIT"); err != nil {
		return err
	}
	// brother models
	return p.cmdNoWait("@PJL INITIALIZE" + EOL +
		"@PJL RESET" + EOL +
		"@PJL EXECUTE SHUTDOWN")
}

// Selftest prints every test page the vendor families know about.
func (p *PJL) Selftest() error {
	pjlTests := []string{
		"SELFTEST", "PCLTYPELIST", "CONTSELFTEST", "PCLDEMOPAGE",
		"PSCONFIGPAGE", "PSTYPEFACELIST", "PSDEMOPAGE", "EVENTLOG",
		"DATASTORE", "ERRORREPORT", "SUPPLIESSTATUSREPORT",
	}
	for _, test := range pjlTests {
		if err := p.cmdNoWait("@PJL SET TESTPAGE=" + test); err != nil {
			return err
		}
	}
	pmlTests := []string{
		"04000401010502040103", "04000401010502040107",
		"04000401010502040108", "04000401010502040109",
		"04000401010502040164", "04000401010502040165",
		"040004010105020401FE", "040004010105020401FF",
		"040004010105020402015E", "04000401010502040201C2",
	}
	for _, test := range pmlTests {
		if err := p.cmdNoWait(`@PJL DMCMD ASCIIHEX="` + test + `"`); err != nil {
			return err
		}
	}
	return p.cmdNoWait("@PJL EXECUTE MAINTENANCEPRINT" + EOL +
		"@PJL EXECUTE TESTPRINT" + EOL +
		"@PJL EXECUTE DEMOPAGE" + EOL +
		"@PJL EXECUTE RESIFONT" + EOL +
		"@PJL EXECUTE PERMFONT" + EOL +
		"@PJL EXECUTE PRTCONFIG")
}

// TogglePrinting flips the JOBMEDIA variable, disabling or re-enabling
// print functionality. It returns the new state.
func (p *PJL) TogglePrinting() (string, error) {
	state, err := p.DInquire("JOBMEDIA")
	if err != nil {
		return "", err
	}
	switch {
	case state == "" || strings.Contains(state, "?"):
		return "", NewError(ErrUnsupported, "JOBMEDIA not available")
	case strings.Contains(state, "ON"):
		err = p.Set("JOBMEDIA", "OFF")
	case strings.Contains(state, "OFF"):
		err = p.Set("JOBMEDIA", "ON")
	}
	if err != nil {
		return "", err
	}
	return p.DInquire("JOBMEDIA")
}

// Hold enables job retention so future print jobs stay on the device.
// It returns the retention setting read back after a reconnect, since
// some devices only apply it to fresh connections.
func (p *PJL) Hold() (string, error) {
	if err := p.Set("HOLD", "ON"); err != nil {
		return "", err
	}
	if err := p.transport.Reopen(); err != nil {
		return "", err
	}
	value, err := p.PrintEnv("HOLD")
	if err != nil {
		return "", err
	}
	if value == "" {
		return "NOT AVAILABLE", nil
	}
	return value, nil
}

// --------------------------------------------------------------------
// nvram

// NVRAMRead reads a single byte from an NVRAM address (brother).
func (p *PJL) NVRAMRead(addr int) (byte, bool, error) {
	reply, err := p.cmd("@PJL RNVRAM ADDRESS=" + strconv.Itoa(addr))
	if err != nil {
		return 0, false, err
	}
	m := pjlNVData.FindSubmatch(reply)
	if m == nil {
		return 0, false, nil
	}
	n, _ := strconv.Atoi(string(m[1]))
	return byte(n), true, nil
}

// NVRAMWrite writes a single byte to an NVRAM address (brother).
func (p *PJL) NVRAMWrite(addr int, data byte) error {
	return p.cmdNoWait("@PJL SUPERUSER PASSWORD=0" + EOL +
		"@PJL WNVRAM ADDRESS=" + strconv.Itoa(addr) +
		" DATA=" + strconv.Itoa(int(data)) + EOL +
		"@PJL SUPERUSEROFF")
}

// NVRAMDump reads the device NVRAM. With sample set, the address space
// is probed in 512 byte blocks up to 256 KiB first; otherwise a fixed
// set of ranges known to hold interesting data is read. progress may
// be nil. An unsupported device yields an empty dump.
func (p *PJL) NVRAMDump(sample bool, progress func(done int)) ([]byte, error) {
	const (
		blockSize = 1 << 9
		maxAddr   = 1 << 18
		steps     = 1 << 9
	)
	var memspace []int
	if sample {
		var probes []string
		for n := 0; n < maxAddr; n += blockSize {
			probes = append(probes, "@PJL RNVRAM ADDRESS="+strconv.Itoa(n))
		}
		for i := 0; i < len(probes); i += steps {
			end := min(i+steps, len(probes))
			reply, err := p.cmd(strings.Join(probes[i:end], EOL))
			if err != nil {
				return nil, err
			}
			if len(reply) == 0 {
				return nil, nil
			}
			for _, m := range pjlNVAddress.FindAllSubmatch(reply, -1) {
				base, _ := strconv.Atoi(string(m[1]))
				for a := base; a < base+blockSize; a++ {
					memspace = append(memspace, a)
				}
			}
		}
	} else {
		for a := 0; a < 8192; a++ {
			memspace = append(memspace, a)
		}
		for a := 32768; a < 33792; a++ {
			memspace = append(memspace, a)
		}
		for a := 53248; a < 59648; a++ {
			memspace = append(memspace, a)
		}
	}

	commands := make([]string, len(memspace))
	for i, a := range memspace {
		commands[i] = "@PJL RNVRAM ADDRESS=" + strconv.Itoa(a)
	}
	var dump []byte
	for i := 0; i < len(commands); i += steps {
		end := min(i+steps, len(commands))
		reply, err := p.cmd(strings.Join(commands[i:end], EOL))
		if err != nil {
			return dump, err
		}
		if len(reply) == 0 {
			return dump, nil
		}
		for _, m := range pjlNVData.FindAllSubmatch(reply, -1) {
			n, _ := strconv.Atoi(string(m[1]))
			dump = append(dump, byte(n))
		}
		if progress != nil {
			progress(len(dump))
		}
	}
	return dump, nil
}

// --------------------------------------------------------------------
// locking

// LockStatus is the readback of the three PJL protection settings.
type LockStatus struct {
	Password string
	Panel    string
	Disk     string
}

// ShowLock reads the current protection state. Settings the device
// does not answer for report as UNSUPPORTED.
func (p *PJL) ShowLock() (LockStatus, error) {
	read := func(name string) (string, error) {
		value, err := p.DInquire(name)
		if err != nil {
			return "", err
		}
		if value == "" || strings.Contains(value, "?") {
			return "UNSUPPORTED", nil
		}
		return value, nil
	}
	var status LockStatus
	var err error
	if status.Password, err = read("PASSWORD"); err != nil {
		return status, err
	}
	if status.Panel, err = read("CPLOCK"); err != nil {
		return status, err
	}
	status.Disk, err = read("DISKLOCK")
	return status, err
}

// Lock protects the control panel and disk write access with a PIN in
// 1..65535.
func (p *PJL) Lock(pin int) (LockStatus, error) {
	err := p.cmdNoWait("@PJL DEFAULT PASSWORD=" + strconv.Itoa(pin) + EOL +
		"@PJL DEFAULT CPLOCK=ON" + EOL +
		"@PJL DEFAULT DISKLOCK=ON")
	if err != nil {
		return LockStatus{}, err
	}
	return p.ShowLock()
}

// Unlock removes PIN protection. With pin >= 0 only that value is
// tried; with pin < 0 the whole keyspace is searched, packed into
// chunks of the configured size. The returned pin is only meaningful
// with chunk size 1; larger chunks remove the protection without
// telling which candidate did it.
func (p *PJL) Unlock(pin int) (LockStatus, string, error) {
	var status LockStatus
	current, err := p.DInquire("PASSWORD")
	if err != nil {
		return status, "", err
	}
	if current == "" || strings.Contains(current, "?") {
		return status, "", NewError(ErrUnsupported, "locking not supported by device")
	}

	var keyspace []string
	if pin >= 0 {
		keyspace = []string{strconv.Itoa(pin)}
	} else {
		// some devices accept the empty password outright
		keyspace = append(keyspace, "")
		for n := 1; n < 65536; n++ {
			keyspace = append(keyspace, strconv.Itoa(n))
		}
	}

	found, removed, err := p.crackPIN(keyspace)
	if err != nil {
		return status, "", err
	}
	if !removed {
		status, serr := p.ShowLock()
		if serr != nil {
			return status, "", serr
		}
		return status, "", NewError(ErrDevice, "bad PIN")
	}
	// protection is down, clear the dependent locks too
	if err := p.cmdNoWait("@PJL DEFAULT CPLOCK=OFF" + EOL +
		"@PJL DEFAULT DISKLOCK=OFF"); err != nil {
		return status, found, err
	}
	status, err = p.ShowLock()
	return status, found, err
}

// crackPIN runs the chunked keyspace search. Every candidate opens a
// job with the guess and resets the password; each chunk ends with a
// readback of the protection state. A reply still starting with "ENA"
// (devices spell ENABLED, ENABLE and even ENALBED) means the chunk
// missed.
func (p *PJL) crackPIN(keyspace []string) (pin string, removed bool, err error) {
	steps := p.config.ChunkSize
	if steps < 1 {
		steps = 1
	}
	for i := 0; i < len(keyspace); i += steps {
		end := min(i+steps, len(keyspace))
		chunk := keyspace[i:end]

		var job bytes.Buffer
		for _, candidate := range chunk {
			job.WriteString("@PJL JOB PASSWORD=" + candidate + EOL)
			job.WriteString("@PJL DEFAULT PASSWORD=0" + EOL)
		}
		job.WriteString("@PJL DINQUIRE PASSWORD")

		if len(keyspace) > 1 {
			last := chunk[len(chunk)-1]
			if n, aerr := strconv.Atoi(last); aerr == nil {
				p.log.Debugf("trying PIN %s (%.2f%%)", last, float64(n)/655.35)
			}
		}
		reply, err := p.Command(job.Bytes(), CmdOptions{TimeoutFactor: 5})
		if err != nil {
			return "", false, err
		}
		if bytes.HasPrefix(bytes.TrimLeft(reply, "\r\n\x00\f "), []byte("ENA")) {
			continue
		}
		if len(chunk) == 1 {
			pin = chunk[0]
		}
		return pin, true, nil
	}
	return "", false, nil
}
