package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/drunlade/prex/prex"
)

// pjlCommand handles the PJL-only commands. It returns false when cmd
// is not one of them.
func (sh *shell) pjlCommand(cmd string, args []string, errp *error) bool {
	p := sh.pjl
	switch cmd {
	case "id":
		var id string
		if id, *errp = p.ID(); *errp == nil {
			fmt.Println(id)
		}
	case "info":
		if *errp = need(args, "info <category>"); *errp != nil {
			return true
		}
		var out string
		if out, *errp = p.Info(args[0]); *errp == nil {
			fmt.Println(out)
		}
	case "env":
		var out string
		if out, *errp = p.Env(); *errp == nil {
			fmt.Println(out)
		}
	case "printenv":
		if *errp = need(args, "printenv <var>"); *errp != nil {
			return true
		}
		var out string
		if out, *errp = p.PrintEnv(args[0]); *errp == nil {
			fmt.Println(out)
		}
	case "set":
		if *errp = need(args, "set <var=value>"); *errp != nil {
			return true
		}
		name, value, found := strings.Cut(strings.Join(args, " "), "=")
		if !found {
			*errp = fmt.Errorf("usage: set <var=value>")
			return true
		}
		*errp = p.Set(name, value)
	case "display":
		*errp = p.Display(strings.Join(args, " "))
	case "offline":
		*errp = p.Offline(strings.Join(args, " "))
	case "restart":
		*errp = p.Restart()
	case "reset":
		*errp = p.Reset()
	case "selftest":
		*errp = p.Selftest()
	case "disable":
		var state string
		if state, *errp = p.TogglePrinting(); *errp == nil {
			fmt.Println(state)
		}
	case "hold":
		var state string
		if state, *errp = p.Hold(); *errp == nil {
			fmt.Println(state)
		}
	case "format":
		*errp = p.Format()
	case "df":
		var vols []string
		if vols, *errp = p.Volumes(); *errp == nil {
			for _, vol := range vols {
				fmt.Println(vol)
			}
		}
	case "pagecount":
		if len(args) == 0 {
			var out string
			if out, *errp = p.Info("pagecount"); *errp == nil {
				fmt.Println(out)
			}
			return true
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			*errp = fmt.Errorf("bad page count %q", args[0])
			return true
		}
		*errp = p.SetPagecount(n)
	case "nvram":
		sh.nvramCommand(args, errp)
	case "lock":
		if *errp = need(args, "lock <pin>"); *errp != nil {
			return true
		}
		pin, err := strconv.Atoi(args[0])
		if err != nil || pin < 1 || pin > 65535 {
			*errp = fmt.Errorf("PIN must be a number in 1..65535")
			return true
		}
		var status prex.LockStatus
		if status, *errp = p.Lock(pin); *errp == nil {
			printLock(status)
		}
	case "unlock":
		pin := -1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				*errp = fmt.Errorf("bad PIN %q", args[0])
				return true
			}
			pin = n
		}
		status, found, err := p.Unlock(pin)
		if err != nil {
			*errp = err
			return true
		}
		if found != "" {
			fmt.Println("PIN found:", found)
		} else {
			fmt.Println("Protection removed.")
		}
		printLock(status)
	case "show":
		var status prex.LockStatus
		if status, *errp = p.ShowLock(); *errp == nil {
			printLock(status)
		}
	case "destroy":
		fmt.Println("Warning: this tries to physically destroy the NVRAM. CTRL+C to abort.")
		report, err := p.Destroy(0, func(cycles int) {
			fmt.Printf("\rNVRAM write cycles: %d", cycles)
		})
		fmt.Println()
		if err != nil {
			*errp = err
			return true
		}
		printStress(report)
	case "flood":
		size := 0
		if len(args) > 0 {
			size, _ = strconv.Atoi(args[0])
		}
		alive, err := p.Flood(size, func(input string) {
			fmt.Println("Sending:", input)
		})
		if err != nil {
			*errp = err
			return true
		}
		if alive {
			fmt.Println("Device still reachable.")
		} else {
			fmt.Println("Device no longer answers.")
		}
	default:
		return false
	}
	return true
}

// resourceCommand lists a resource category, optionally dumping every
// instance in it.
func (sh *shell) resourceCommand(args []string, errp *error) {
	if len(args) == 0 {
		cats, err := sh.ps.ResourceCategories()
		if err != nil {
			*errp = err
			return
		}
		fmt.Println("usage: resource <category> [dump]")
		fmt.Println("Available categories:", strings.Join(cats, " "))
		return
	}
	category := args[0]
	items, err := sh.ps.Resource(category)
	if err != nil {
		*errp = err
		return
	}
	dump := len(args) > 1 && args[1] == "dump"
	for _, item := range items {
		fmt.Println(item)
		if !dump {
			continue
		}
		blob, err := sh.ps.DumpResource(category, item)
		if err != nil {
			*errp = err
			return
		}
		os.Stdout.Write(blob)
		fmt.Println()
	}
}

func (sh *shell) nvramCommand(args []string, errp *error) {
	p := sh.pjl
	if len(args) == 0 {
		*errp = fmt.Errorf("usage: nvram <dump [file]|read <addr>|write <addr> <byte>>")
		return
	}
	switch args[0] {
	case "dump":
		data, err := p.NVRAMDump(len(args) < 2, func(done int) {
			fmt.Printf("\rReading NVRAM: %d bytes", done)
		})
		fmt.Println()
		if err != nil {
			*errp = err
			return
		}
		if len(args) > 1 {
			if *errp = os.WriteFile(args[1], data, 0o644); *errp == nil {
				fmt.Printf("%d bytes written to %s.\n", len(data), args[1])
			}
			return
		}
		os.Stdout.Write(data)
		fmt.Println()
	case "read":
		if len(args) < 2 {
			*errp = fmt.Errorf("usage: nvram read <addr>")
			return
		}
		addr, err := strconv.Atoi(args[1])
		if err != nil {
			*errp = err
			return
		}
		b, ok, err := p.NVRAMRead(addr)
		if err != nil {
			*errp = err
			return
		}
		if !ok {
			fmt.Println("No data at address.")
			return
		}
		fmt.Printf("0x%05x: %02x\n", addr, b)
	case "write":
		if len(args) < 3 {
			*errp = fmt.Errorf("usage: nvram write <addr> <byte>")
			return
		}
		addr, err1 := strconv.Atoi(args[1])
		value, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil || value < 0 || value > 255 {
			*errp = fmt.Errorf("bad address or byte value")
			return
		}
		*errp = p.NVRAMWrite(addr, byte(value))
	default:
		*errp = fmt.Errorf("unknown nvram subcommand %q", args[0])
	}
}

func printLock(status prex.LockStatus) {
	fmt.Println("PIN protection:  " + status.Password)
	fmt.Println("Panel lock:      " + status.Panel)
	fmt.Println("Disk lock:       " + status.Disk)
}

func printStress(report prex.StressReport) {
	switch {
	case report.NVRAMDead:
		fmt.Printf("NVRAM died after %d cycles, %v.\n", report.Cycles, report.Elapsed)
	case report.Crashed:
		fmt.Printf("Device crashed after %d cycles, %v.\n", report.Cycles, report.Elapsed)
	default:
		fmt.Printf("%d cycles, %v, device still going.\n", report.Cycles, report.Elapsed)
	}
}

// pclCommand handles the PCL-only commands.
func (sh *shell) pclCommand(cmd string, args []string, errp *error) bool {
	p := sh.pcl
	switch cmd {
	case "info":
		if len(args) == 0 {
			fmt.Println("usage: info <" + strings.Join(prex.InfoCategories(), "|") + ">")
			return true
		}
		readbacks, err := p.Info(args[0])
		if err != nil {
			*errp = err
			return true
		}
		for location, readback := range readbacks {
			fmt.Printf("%-12s %s\n", location+":", readback)
		}
	case "free":
		var out string
		if out, *errp = p.Free(); *errp == nil {
			fmt.Println(out)
		}
	case "selftest":
		*errp = p.Selftest()
	default:
		return false
	}
	return true
}

// psCommand handles the PostScript-only commands.
func (sh *shell) psCommand(cmd string, args []string, errp *error) bool {
	ps := sh.ps
	switch cmd {
	case "id":
		var id string
		if id, *errp = ps.ID(); *errp == nil {
			fmt.Println(id)
		}
	case "version":
		var out string
		if out, *errp = ps.Version(); *errp == nil {
			fmt.Println(out)
		}
	case "devices":
		devices, err := ps.Devices()
		if err != nil {
			*errp = err
			return true
		}
		for dev, params := range devices {
			fmt.Println(dev)
			fmt.Println(params)
		}
	case "uptime":
		var up time.Duration
		if up, *errp = ps.Uptime(); *errp == nil {
			fmt.Println(up)
		}
	case "date":
		var out string
		if out, *errp = ps.Date(); *errp == nil {
			fmt.Println(out)
		}
	case "pagecount":
		var out string
		if out, *errp = ps.Pagecount(); *errp == nil {
			fmt.Println(out)
		}
	case "df":
		vols, err := ps.DF()
		if err != nil {
			*errp = err
			return true
		}
		fmt.Println("volume      size       free  pri removable mounted named writeable searchable")
		for _, vol := range vols {
			fmt.Printf("%-10s %s\n", vol.Name, strings.Join(vol.Fields, " "))
		}
	case "free":
		var out string
		if out, *errp = ps.Free(); *errp == nil {
			fmt.Println(out)
		}
	case "rename":
		if len(args) < 2 {
			*errp = fmt.Errorf("usage: rename <old> <new>")
			return true
		}
		*errp = ps.Rename(args[0], args[1])
	case "dicts":
		dicts, err := ps.Dicts()
		if err != nil {
			*errp = err
			return true
		}
		fmt.Println("acl   len   max   dictionary")
		for _, d := range dicts {
			fmt.Printf("%-5s %-5d %-5d %s\n", d.Perms, d.Len, d.Max, d.Name)
		}
	case "dump":
		if *errp = need(args, "dump <dict>"); *errp != nil {
			fmt.Println("Standard dictionaries:", strings.Join(prex.DictNames(), " "))
			return true
		}
		var dump []byte
		if dump, *errp = ps.DumpDict(args[0]); *errp == nil {
			os.Stdout.Write(dump)
			fmt.Println()
		}
	case "resource":
		sh.resourceCommand(args, errp)
	case "known":
		if *errp = need(args, "known <operator...>"); *errp != nil {
			return true
		}
		known, err := ps.Known(args)
		if err != nil {
			*errp = err
			return true
		}
		for _, op := range args {
			fmt.Printf("%-20s %v\n", op, known[op])
		}
	case "search":
		if *errp = need(args, "search <key>"); *errp != nil {
			return true
		}
		var out string
		if out, *errp = ps.Search(args[0]); *errp == nil {
			fmt.Println(out)
		}
	case "set":
		if len(args) < 2 {
			*errp = fmt.Errorf("usage: set <key> <value>")
			return true
		}
		*errp = ps.Set(args[0], strings.Join(args[1:], " "))
	case "config":
		if *errp = need(args, "config <setting> [value]"); *errp != nil {
			return true
		}
		value := ""
		if len(args) > 1 {
			value = args[1]
		}
		var out string
		if out, *errp = ps.Config(args[0], value); *errp == nil {
			fmt.Println(out)
		}
	case "restart":
		*errp = ps.Restart()
	case "reset":
		*errp = ps.Reset()
		fmt.Println("Factory defaults arm on the next power-off.")
	case "format":
		*errp = ps.Format()
	case "disable":
		var state string
		if state, *errp = ps.TogglePrinting(); *errp == nil {
			fmt.Println(state)
		}
	case "hang":
		*errp = ps.Hang()
	case "hold":
		var out string
		if out, *errp = ps.Hold(); *errp == nil {
			fmt.Println(out)
		}
	case "destroy":
		fmt.Println("Warning: this tries to physically destroy the NVRAM. CTRL+C to abort.")
		report, err := ps.Destroy(0, func(cycles int) {
			fmt.Printf("\rNVRAM write cycles: %d", cycles)
		})
		fmt.Println()
		if err != nil {
			*errp = err
			return true
		}
		printStress(report)
	case "lock":
		if *errp = need(args, "lock <password>"); *errp == nil {
			*errp = ps.Lock(args[0])
		}
	case "unlock":
		if len(args) > 0 {
			*errp = ps.Unlock(args[0])
		} else {
			*errp = ps.UnlockBypass()
		}
		if *errp == nil {
			fmt.Println("Passwords cleared.")
		}
	case "crack":
		password, err := ps.CrackPassword()
		if err != nil {
			*errp = err
			return true
		}
		if password == "" {
			fmt.Println("No numeric password found.")
		} else {
			fmt.Println("Password:", password)
		}
	case "shell":
		fmt.Println("Entering executive mode, CTRL+D to leave.")
		*errp = ps.Executive(os.Stdin, os.Stdout)
	default:
		return false
	}
	return true
}
