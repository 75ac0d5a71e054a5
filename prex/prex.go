// Package prex implements client-side access to network printer job
// languages: PJL, PCL 5 and PostScript.
//
// Printers accept print jobs on TCP port 9100 as a raw byte stream. The
// same channel doubles as a control channel: PJL exposes the device
// filesystem and environment variables, PCL macro slots can be abused as
// a tiny key-value store, and a PostScript interpreter will happily run
// arbitrary programs. This package frames commands for each language,
// collects the echoed reply, and builds a filesystem-like API on top.
//
// The package is designed as a library that can wrap raw TCP or
// SSH-forwarded connections and provides hooks for logging, traffic
// capture, and progress tracking.
package prex

import "regexp"

// Wire framing shared by every printer language.
const (
	// ESC introduces a PCL escape sequence.
	ESC = "\x1b"

	// UEL is the Universal Exit Language sequence. It resets the
	// interpreter and delimits jobs; every command is wrapped in a
	// pair of these.
	UEL = ESC + "%-12345X"

	// EOL is the line ending used inside PJL jobs.
	EOL = "\r\n"

	// SEP separates path components on the device filesystem.
	SEP = "/"

	// FF is the form feed PJL status readbacks are padded with.
	FF = "\x0c"
)

// Delimiter tokens. Every command that expects a reply appends an echo
// of a freshly minted token and reads until the device repeats it.
const (
	// delimiterWord prefixes PJL and PostScript tokens. A random
	// suffix in [0,65536) is appended per command.
	delimiterWord = "DELIMITER"

	// pclTokenMin and pclTokenMax bound the PCL echo token range.
	// PCL echoes numeric values only, so the token is a negative
	// number that cannot collide with echoed payload bytes.
	pclTokenMin = 256
	pclTokenMax = 32767
)

// PostScript program fragments.
const (
	// psHeader switches a PJL-aware device into the PostScript
	// interpreter.
	psHeader = "@PJL ENTER LANGUAGE=POSTSCRIPT\n"

	// psGlobal promotes the rest of the job out of the server loop
	// so that state changes survive the job boundary.
	psGlobal = "true 0 startjob pop\n"

	// psSuper executes the next token with systemdict privileges on
	// interpreters that still ship the internaldict backdoor.
	psSuper = " 1183615869 internaldict /superexec get exec"

	// psIOHack redefines = and == to write to %stdout for devices
	// that echo nothing by default.
	psIOHack = "/print {(%stdout) (w) file dup 3 2 roll writestring flushfile} def\n" +
		"/== {128 string cvs print (\\n) print} def\n"

	// psPrompt is the executive mode prompt.
	psPrompt = "PS>"
)

// PCL framing and virtual filesystem parameters.
const (
	// pclHeader switches into PCL, resets the engine and leaves a
	// trailing ESC so the payload continues the escape sequence.
	pclHeader = "@PJL ENTER LANGUAGE=PCL" + EOL + ESC + "E" + ESC

	// Superblock is the macro slot holding the virtual filesystem
	// metadata table.
	Superblock = 31337

	// BlockMin and BlockMax bound the macro id pool available for
	// file data. Ids outside the pool are left to the device.
	BlockMin = 10000
	BlockMax = 19999
)

// Sentinels returned by FileSystem.Exists.
const (
	// Nonexistent means the path could not be found.
	Nonexistent int64 = -1

	// FileExists means the path exists but its size is unknown.
	FileExists int64 = -2
)

// Reply patterns compiled once. The transport strips everything from
// the match onward, so callers see the payload only.
var (
	// psError matches an interpreter error report. The response that
	// carries one is discarded and the message surfaced instead.
	psError = regexp.MustCompile(`%%\[ Error: (.*?) \]%%`)

	// psCatch matches any interpreter status message.
	psCatch = regexp.MustCompile(`%%\[ (.*?) \]%%`)

	// psFlush terminates a reply when the interpreter aborts the job.
	psFlush = `%%\[ Flushing: .*? \]%%`

	// pclScrub strips the language preamble some engines prepend.
	pclScrub = regexp.MustCompile(`\r?\n?\f?PCL.*\n?`)

	// pclEcho matches one echoed data byte.
	pclEcho = regexp.MustCompile(`ECHO (\d+)`)

	// pclIDList matches the macro directory readback.
	pclIDList = regexp.MustCompile(`IDLIST="([^"]*)"`)
)
