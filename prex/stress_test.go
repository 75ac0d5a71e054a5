package prex

import (
	"bytes"
	"strings"
	"testing"
)

func TestDestroyDetectsDeadNVRAM(t *testing.T) {
	// the store stops sticking after 5 settings of COPIES
	writes := 0
	p, _ := newTestPJL(t, func(job []byte) string {
		if bytes.Contains(job, []byte("DINQUIRE COPIES")) {
			if writes > 5 {
				return "COPIES=7\r\n"
			}
			return "COPIES=42\r\n"
		}
		if bytes.Contains(job, []byte("SET COPIES=42")) {
			writes++
		}
		return ""
	})

	report, err := p.Destroy(100*destroySteps, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !report.NVRAMDead {
		t.Fatalf("report = %+v, want NVRAMDead", report)
	}
	if report.Crashed {
		t.Fatalf("report = %+v, crash misdetected", report)
	}
}

func TestDestroyDetectsCrash(t *testing.T) {
	count := 0
	p, _ := newTestPJL(t, func(job []byte) string {
		if bytes.Contains(job, []byte("DINQUIRE COPIES")) {
			count++
			if count > 1 {
				return "" // device stopped answering
			}
			return "COPIES=42\r\n"
		}
		return ""
	})
	report, err := p.Destroy(100*destroySteps, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Crashed {
		t.Fatalf("report = %+v, want Crashed", report)
	}
}

func TestDestroyStopsAtMaxCycles(t *testing.T) {
	p, _ := newTestPJL(t, func(job []byte) string {
		if bytes.Contains(job, []byte("DINQUIRE COPIES")) {
			return "COPIES=42\r\n"
		}
		return ""
	})
	var progressed int
	report, err := p.Destroy(3*destroySteps, func(cycles int) { progressed = cycles })
	if err != nil {
		t.Fatal(err)
	}
	if report.Cycles != 3*destroySteps || progressed != report.Cycles {
		t.Fatalf("report = %+v, progressed = %d", report, progressed)
	}
	if report.NVRAMDead || report.Crashed {
		t.Fatalf("report = %+v", report)
	}
}

func TestFloodCoversAllInputs(t *testing.T) {
	p, ft := newTestPJL(t, func(job []byte) string {
		if bytes.Contains(job, []byte("INFO VARIABLES")) {
			return "@PJL INFO VARIABLES\r\n" +
				"COPIES=1 [2 RANGE]\r\n" +
				"PAPER=LETTER [3 ENUMERATED]\r\n"
		}
		return ""
	})

	var probed []string
	ok, err := p.Flood(64, func(input string) { probed = append(probed, input) })
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("device should still answer")
	}
	if len(probed) != 2+len(floodTemplates) {
		t.Fatalf("probed %d inputs, want %d", len(probed), 2+len(floodTemplates))
	}

	// flooded jobs actually carry the filler
	var flooded int
	for _, job := range ft.sends {
		if bytes.Contains(job, bytes.Repeat([]byte("0"), 64)) {
			flooded++
		}
	}
	if flooded != len(probed) {
		t.Fatalf("%d jobs carried filler, want %d", flooded, len(probed))
	}
}

func TestFloodTemplatesCarryBufferMarker(t *testing.T) {
	for _, tpl := range floodTemplates {
		if !strings.Contains(tpl, "[buffer]") {
			t.Errorf("template %q has no buffer marker", tpl)
		}
	}
}
