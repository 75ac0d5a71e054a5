package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/drunlade/prex/prex"
)

var (
	safe       = flag.Bool("s", false, "probe filesystem support before starting")
	quiet      = flag.Bool("q", false, "suppress warnings and chit-chat")
	debug      = flag.Bool("d", false, "echo traffic sent to and from the device")
	exceptions = flag.Bool("e", false, "propagate transport errors instead of reconnecting")
	cmdFile    = flag.String("i", "", "read commands from file instead of the prompt")
	logFile    = flag.String("o", "", "append all outgoing traffic to file")
	configFile = flag.String("c", "", "YAML session configuration file")
	timeout    = flag.Int("t", 0, "receive timeout in milliseconds")
	volume     = flag.String("vol", "", "initial filesystem volume")
	status     = flag.Bool("status", false, "request a status readback with every command")
	fuzz       = flag.Bool("fuzz", false, "send paths raw for traversal fuzzing")
	jumpAddr   = flag.String("jump", "", "SSH jump host (host:port)")
	jumpUser   = flag.String("jump-user", "", "SSH jump host user")
	jumpPass   = flag.String("jump-pass", "", "SSH jump host password")
	jumpKey    = flag.String("jump-key", "", "SSH jump host private key file")
	help       = flag.Bool("h", false, "show help")
	version    = flag.Bool("version", false, "show version")
)

const versionString = "prex version 0.2.0"

func main() {
	flag.Usage = func() { showUsage(2) }
	flag.Parse()

	if *help {
		showUsage(0)
	}
	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	var fc *prex.FileConfig
	if *configFile != "" {
		loaded, err := prex.LoadConfig(*configFile)
		if err != nil {
			fatal("config: %v", err)
		}
		fc = loaded
	}

	target, mode := flag.Arg(0), flag.Arg(1)
	if fc != nil {
		if target == "" {
			target = fc.Target
		}
		if mode == "" {
			mode = fc.Mode
		}
	}
	if target == "" || mode == "" {
		fmt.Fprintf(os.Stderr, "%s: target and mode required\n", os.Args[0])
		showUsage(1)
	}
	switch mode {
	case "pjl", "pcl", "ps":
	default:
		fatal("unknown mode %q, expected pjl, pcl or ps", mode)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case *debug:
		log.SetLevel(logrus.DebugLevel)
	case *quiet:
		log.SetLevel(logrus.ErrorLevel)
	}

	transport, err := dialTarget(target, fc)
	if err != nil {
		fatal("%v", err)
	}

	opts := []prex.Option{prex.WithLogger(log)}
	if fc != nil {
		fileOpts, err := fc.Options()
		if err != nil {
			fatal("config: %v", err)
		}
		opts = append(opts, fileOpts...)
	}
	if *timeout > 0 {
		opts = append(opts, prex.WithTimeout(time.Duration(*timeout)*time.Millisecond))
	}
	if *volume != "" {
		opts = append(opts, prex.WithVolume(*volume))
	}
	if *status {
		opts = append(opts, prex.WithStatus())
	}
	if *exceptions {
		opts = append(opts, prex.WithExceptions())
	}
	if *fuzz {
		opts = append(opts, prex.WithFuzz())
	}
	if *logFile != "" {
		opts = append(opts, prex.WithLogFile(*logFile))
	}

	session, err := prex.NewSession(transport, opts...)
	if err != nil {
		fatal("%v", err)
	}
	defer session.Close()

	sh, err := newShell(session, mode, *quiet)
	if err != nil {
		fatal("%v", err)
	}
	defer sh.close()

	if *safe {
		sh.probeCapabilities()
	}

	// a top-level interrupt exits cleanly; mid-command interrupts are
	// handled by the reconnect policy
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		fmt.Println()
		sh.close()
		session.Close()
		os.Exit(0)
	}()

	if *cmdFile != "" {
		if err := sh.runFile(*cmdFile); err != nil {
			fatal("%v", err)
		}
		return
	}
	sh.run()
}

// dialTarget opens the device connection, directly or through an SSH
// jump host.
func dialTarget(target string, fc *prex.FileConfig) (prex.Transport, error) {
	jump := prex.SSHJump{
		Addr:     *jumpAddr,
		User:     *jumpUser,
		Password: *jumpPass,
		KeyFile:  *jumpKey,
	}
	if fc != nil && jump.Addr == "" {
		jump.Addr = fc.Jump.Addr
		jump.User = fc.Jump.User
		jump.Password = fc.Jump.Password
		jump.KeyFile = fc.Jump.KeyFile
	}
	if jump.Addr != "" {
		return prex.DialJump(jump, target)
	}
	return prex.Dial(target)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", os.Args[0], fmt.Sprintf(format, args...))
	os.Exit(1)
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - printer exploitation shell

Usage: %s [options] target {pjl|pcl|ps}

  target    printer address, raw port 9100 unless specified
  mode      printer language to speak

Options:
  -s              probe filesystem support before starting
  -q              suppress warnings and chit-chat
  -d              echo traffic sent to and from the device
  -e              propagate transport errors instead of reconnecting
  -i file         read commands from file instead of the prompt
  -o file         append all outgoing traffic to file
  -c file         YAML session configuration file
  -t ms           receive timeout in milliseconds
  -vol v          initial filesystem volume, e.g. 1:
  -status         request a status readback with every command
  -fuzz           send paths raw for traversal fuzzing
  -jump host:port connect through an SSH jump host
  -jump-user u    jump host user
  -jump-pass p    jump host password
  -jump-key file  jump host private key
  -version        show version
  -h              show help
`, os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
