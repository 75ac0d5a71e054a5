package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/readline"
	"golang.org/x/term"

	"github.com/drunlade/prex/prex"
)

const (
	historyFileName = ".prex_history"
	historySize     = 500
)

// shell is the interactive command loop. One dialect is live per
// session; the common file commands go through the FileSystem contract
// so they work the same in every mode.
type shell struct {
	session *prex.Session
	mode    string
	quiet   bool

	fs  prex.FileSystem
	pjl *prex.PJL
	pcl *prex.PCL
	ps  *prex.PostScript

	interactive bool
	rl          *readline.Instance
	scanner     *bufio.Scanner

	// remote names per working directory, for tab completion
	pathCache map[string][]string
}

func newShell(session *prex.Session, mode string, quiet bool) (*shell, error) {
	sh := &shell{
		session:   session,
		mode:      mode,
		quiet:     quiet,
		pathCache: make(map[string][]string),
	}

	var err error
	switch mode {
	case "pjl":
		sh.pjl, err = prex.NewPJL(session)
		sh.fs = sh.pjl
	case "pcl":
		sh.pcl = prex.NewPCL(session)
		sh.fs = sh.pcl
	case "ps":
		sh.ps, err = prex.NewPostScript(session)
		sh.fs = sh.ps
	}
	if err != nil {
		return nil, err
	}

	sh.interactive = term.IsTerminal(int(os.Stdin.Fd()))
	if !sh.interactive {
		sh.scanner = bufio.NewScanner(os.Stdin)
		return sh, nil
	}

	home, _ := os.UserHomeDir()
	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            filepath.Join(home, historyFileName),
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
		AutoComplete:           sh.completer(),
	})
	if err != nil {
		// degrade to plain line reading
		sh.interactive = false
		sh.scanner = bufio.NewScanner(os.Stdin)
		return sh, nil
	}
	sh.rl = rl
	return sh, nil
}

// completer builds the per-mode command completer. Commands that take
// a remote path complete against the current directory listing.
func (sh *shell) completer() *readline.PrefixCompleter {
	names := []string{
		"pwd", "chvol", "put", "fuzz", "timeout", "help", "exit", "quit",
	}
	pathNames := []string{
		"ls", "dir", "cd", "find", "cat", "get", "append",
		"delete", "rm", "mkdir",
	}
	switch sh.mode {
	case "pjl":
		names = append(names,
			"id", "info", "env", "printenv", "set", "display", "offline",
			"restart", "reset", "selftest", "disable", "hold", "format",
			"df", "pagecount", "nvram", "lock", "unlock", "show",
			"destroy", "flood")
	case "pcl":
		names = append(names, "info", "free", "selftest")
	case "ps":
		names = append(names,
			"id", "version", "devices", "uptime", "date", "pagecount",
			"df", "free", "rename", "dicts", "dump", "resource",
			"known", "search", "set", "config",
			"restart", "reset", "format", "disable", "hang", "hold",
			"destroy", "lock", "unlock", "crack", "shell")
	}

	remote := readline.PcItemDynamic(sh.remoteNames)
	items := make([]*readline.PrefixCompleter, 0, len(names)+len(pathNames))
	for _, name := range pathNames {
		items = append(items, readline.PcItem(name, remote))
	}
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// remoteNames lists the current remote directory once per visit and
// caches the result until a command changes remote state.
func (sh *shell) remoteNames(string) []string {
	cwd := sh.session.CWD()
	if names, ok := sh.pathCache[cwd]; ok {
		return names
	}
	entries, err := sh.fs.List("")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sh.pathCache[cwd] = names
	return names
}

func (sh *shell) close() {
	if sh.rl != nil {
		sh.rl.Close()
		sh.rl = nil
	}
}

func (sh *shell) prompt() string {
	return sh.mode + ":/" + sh.session.CWD() + "> "
}

func (sh *shell) getLine() (string, error) {
	if sh.rl != nil {
		sh.rl.SetPrompt(sh.prompt())
		line, err := sh.rl.Readline()
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sh.rl.SaveToHistory(trimmed)
		}
		return line, nil
	}
	fmt.Print(sh.prompt())
	if !sh.scanner.Scan() {
		if err := sh.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return sh.scanner.Text(), nil
}

func (sh *shell) run() {
	if sh.interactive && !sh.quiet {
		fmt.Printf("Connected in %s mode. Type help for commands.\n", sh.mode)
	}
	for {
		line, err := sh.getLine()
		if err != nil {
			return
		}
		if quit := sh.execute(line); quit {
			return
		}
	}
}

func (sh *shell) runFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if quit := sh.execute(line); quit {
			return nil
		}
	}
	return scanner.Err()
}

func (sh *shell) probeCapabilities() {
	caps := sh.fs.Capabilities()
	var have []string
	for _, c := range []struct {
		cap  prex.Capability
		name string
	}{
		{prex.CapList, "list"}, {prex.CapRead, "read"}, {prex.CapWrite, "write"},
		{prex.CapAppend, "append"}, {prex.CapDelete, "delete"},
		{prex.CapMkdir, "mkdir"}, {prex.CapFormat, "format"},
	} {
		if caps.Has(c.cap) {
			have = append(have, c.name)
		}
	}
	fmt.Println("Filesystem operations:", strings.Join(have, " "))
	if _, err := sh.fs.List(""); err != nil {
		fmt.Println("Warning: directory listing failed, device may have no filesystem")
	}
}

// execute runs one shell line. It returns true when the session should
// end.
func (sh *shell) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		return true
	case "help":
		sh.help()
		return false
	}

	var err error
	switch {
	case sh.commonCommand(cmd, args, &err):
	case sh.pjl != nil && sh.pjlCommand(cmd, args, &err):
	case sh.pcl != nil && sh.pclCommand(cmd, args, &err):
	case sh.ps != nil && sh.psCommand(cmd, args, &err):
	default:
		fmt.Printf("Unknown command %q, try help.\n", cmd)
		return false
	}
	if err != nil {
		fmt.Println("Error:", err)
	} else if devErr := sh.session.LastError(); devErr != nil && !sh.quiet {
		fmt.Println("Device:", devErr.Message)
	}

	switch cmd {
	case "put", "append", "delete", "rm", "mkdir", "format", "fuzz":
		clear(sh.pathCache)
	}
	return false
}

// commonCommand handles the commands shared by all dialects. It
// returns false when cmd is not one of them.
func (sh *shell) commonCommand(cmd string, args []string, errp *error) bool {
	switch cmd {
	case "pwd":
		fmt.Println("/" + sh.session.CWD())
	case "cd":
		if len(args) == 0 {
			sh.session.ChDir("/")
		} else {
			sh.session.ChDir(args[0])
		}
	case "chvol":
		if *errp = need(args, "chvol <volume>"); *errp == nil {
			sh.session.ChVol(args[0])
		}
	case "ls", "dir":
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		entries, err := sh.fs.List(dir)
		if err != nil {
			*errp = err
			return true
		}
		for _, e := range entries {
			if e.Dir {
				fmt.Printf("d        -  %s\n", e.Name)
			} else if e.Size < 0 {
				fmt.Printf("-        ?  %s\n", e.Name)
			} else {
				fmt.Printf("- %8d  %s\n", e.Size, e.Name)
			}
		}
	case "find":
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		*errp = sh.fs.Walk(dir, func(path string, e prex.DirEntry) error {
			fmt.Println(path)
			return nil
		})
	case "cat":
		if *errp = need(args, "cat <file>"); *errp != nil {
			return true
		}
		data, err := sh.fs.Read(args[0])
		if err != nil {
			*errp = err
			return true
		}
		os.Stdout.Write(data)
		fmt.Println()
	case "get":
		if *errp = need(args, "get <file> [local]"); *errp != nil {
			return true
		}
		local := filepath.Base(args[0])
		if len(args) > 1 {
			local = args[1]
		}
		data, err := sh.fs.Read(args[0])
		if err != nil {
			*errp = err
			return true
		}
		if *errp = os.WriteFile(local, data, 0o644); *errp == nil {
			fmt.Printf("%d bytes received.\n", len(data))
		}
	case "put":
		if *errp = need(args, "put <local> [remote]"); *errp != nil {
			return true
		}
		remote := filepath.Base(args[0])
		if len(args) > 1 {
			remote = args[1]
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			*errp = err
			return true
		}
		if *errp = sh.fs.Write(remote, data); *errp == nil {
			fmt.Printf("%d bytes sent.\n", len(data))
		}
	case "append":
		if len(args) < 2 {
			*errp = fmt.Errorf("usage: append <file> <text>")
			return true
		}
		*errp = sh.fs.Append(args[0], []byte(strings.Join(args[1:], " ")+"\n"))
	case "rm", "delete":
		if *errp = need(args, "delete <file>"); *errp == nil {
			*errp = sh.fs.Delete(args[0])
		}
	case "mkdir":
		if *errp = need(args, "mkdir <dir>"); *errp == nil {
			*errp = sh.fs.Mkdir(args[0])
		}
	case "fuzz":
		sh.runFuzzer(args)
	case "timeout":
		if *errp = need(args, "timeout <ms>"); *errp != nil {
			return true
		}
		ms, err := strconv.Atoi(args[0])
		if err != nil || ms <= 0 {
			*errp = fmt.Errorf("bad timeout %q", args[0])
			return true
		}
		sh.session.SetTimeout(time.Duration(ms) * time.Millisecond)
	default:
		return false
	}
	return true
}

func (sh *shell) runFuzzer(args []string) {
	mode := "path"
	if len(args) > 0 {
		mode = args[0]
	}
	f := prex.NewFuzzer(sh.fs)
	if !sh.quiet {
		f.Probe = func(path string) { fmt.Printf("\rProbing %-60s", path) }
	}
	var results []prex.FuzzResult
	switch mode {
	case "path":
		results = f.FuzzPath()
	case "write":
		results = f.FuzzWrite()
	case "blind":
		results = f.FuzzBlind()
	default:
		fmt.Println("usage: fuzz [path|write|blind]")
		return
	}
	fmt.Println()
	for _, r := range results {
		fmt.Printf("%-40s %s\n", r.Path, r.Note)
	}
	fmt.Printf("%d hits.\n", len(results))
}

func need(args []string, usage string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (sh *shell) help() {
	fmt.Print(`Common commands:
  ls [dir]  cd <dir>  pwd  chvol <vol>  find [dir]
  cat <f>  get <f> [local]  put <local> [remote]  append <f> <text>
  delete <f>  mkdir <d>  fuzz [path|write|blind]  timeout <ms>  exit
`)
	switch sh.mode {
	case "pjl":
		fmt.Print(`PJL commands:
  id  info <category>  env  printenv <var>  set <var=value>  display <msg>
  offline <msg>  restart  reset  selftest  disable  hold  format  df
  pagecount [n]  nvram <dump [file]|read <addr>|write <addr> <byte>>
  lock <pin>  unlock [pin]  show  destroy  flood [size]
`)
	case "pcl":
		fmt.Print(`PCL commands:
  info <fonts|macros|patterns|symbols|extended>  free  selftest
`)
	case "ps":
		fmt.Print(`PostScript commands:
  id  version  devices  uptime  date  pagecount  df  free  rename <old> <new>
  dicts  dump <dict>  resource <category> [dump]
  known <op...>  search <key>  set <key> <value>  config <setting> [value]
  restart  reset  format  disable  hang  hold  destroy
  lock <password>  unlock [password]  crack  shell
`)
	}
}
