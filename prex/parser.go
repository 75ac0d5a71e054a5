package prex

import (
	"regexp"
	"strconv"
	"strings"
)

// Reply parsing is kept free of session state so it can be tested
// against canned device output. Real devices disagree on whitespace,
// padding and flag spelling; the patterns here are deliberately loose.

var (
	statusCode    = regexp.MustCompile(`CODE(\d*)\s*=\s*(\d+)`)
	statusDisplay = regexp.MustCompile(`DISPLAY(\d*)\s*=\s*"([^"]*)"`)
	fileError     = regexp.MustCompile(`FILEERROR\s*=\s*(\d+)`)
	dirEntryLine  = regexp.MustCompile(`^(.*?)\s+TYPE\s*=\s*(DIR|FILE)(?:\s+(SIZE)\s*=\s*(\d*))?\s*$`)
	fsQuerySize   = regexp.MustCompile(`TYPE\s*=\s*FILE\s+SIZE\s*=\s*(\d+)`)
	fsQueryDir    = regexp.MustCompile(`TYPE\s*=\s*DIR`)
	pjlValue      = regexp.MustCompile(`=\s*"?([^"\r\n]*)"?`)
)

// StatusMessage is one entry from a PJL status readback.
type StatusMessage struct {
	// Code is the numeric status code as reported, after vendor
	// offset correction.
	Code string

	// Display is the front panel text associated with the code.
	Display string
}

// ParseStatus extracts code/display pairs from an INFO STATUS block.
// Multi-message readbacks index their keys (CODE1=, DISPLAY1=, ...);
// pairs are joined by index. Codes in the 32xxx range carry a vendor
// offset of 2000 relative to the published code table and are shifted
// back.
func ParseStatus(b []byte) []StatusMessage {
	codes := map[string]string{}
	displays := map[string]string{}
	var order []string

	for _, m := range statusCode.FindAllSubmatch(b, -1) {
		idx := string(m[1])
		code := string(m[2])
		if strings.HasPrefix(code, "32") {
			if n, err := strconv.Atoi(code); err == nil {
				code = strconv.Itoa(n - 2000)
			}
		}
		if _, seen := codes[idx]; !seen {
			order = append(order, idx)
		}
		codes[idx] = code
	}
	for _, m := range statusDisplay.FindAllSubmatch(b, -1) {
		idx := string(m[1])
		if _, seen := codes[idx]; !seen {
			if _, dup := displays[idx]; !dup {
				order = append(order, idx)
			}
		}
		displays[idx] = string(m[2])
	}

	var msgs []StatusMessage
	for _, idx := range order {
		msgs = append(msgs, StatusMessage{Code: codes[idx], Display: displays[idx]})
	}
	return msgs
}

// ParseFileErrors extracts filesystem error codes from a reply.
// FILEERROR reports the low digits only; the published table keys them
// as 3xxxx, so the value is zero-padded to four digits under a leading
// 3.
func ParseFileErrors(b []byte) []string {
	var codes []string
	for _, m := range fileError.FindAllSubmatch(b, -1) {
		codes = append(codes, "3"+zfill(string(m[1]), 4))
	}
	return codes
}

func zfill(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// ParseDirList parses an FSDIRLIST reply. Entries without a SIZE field
// are still files; some devices hide the size of everything, and a few
// label directories as sizeless files. Size -1 marks those.
func ParseDirList(b []byte) []DirEntry {
	var entries []DirEntry
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.Trim(line, "\r\x00 ")
		m := dirEntryLine.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			continue
		}
		e := DirEntry{Name: m[1], Size: -1}
		if m[2] == "DIR" {
			e.Dir = true
		}
		if m[3] != "" {
			// SIZE key present; some devices leave the value empty
			e.Size = 0
			if n, err := strconv.ParseInt(m[4], 10, 64); err == nil {
				e.Size = n
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// ParseFSQuery parses an FSQUERY reply into a size sentinel: the byte
// size for files, FileExists for directories, Nonexistent when the
// device reported neither.
func ParseFSQuery(b []byte) int64 {
	if m := fsQuerySize.FindSubmatch(b); m != nil {
		if n, err := strconv.ParseInt(string(m[1]), 10, 64); err == nil {
			return n
		}
	}
	if fsQueryDir.Match(b) {
		return FileExists
	}
	return Nonexistent
}

// ParseValue extracts the value from a PJL INQUIRE/DINQUIRE readback,
// which echoes `KEY=VALUE` or the bare value on its own line.
func ParseValue(b []byte) string {
	s := strings.Trim(string(b), "\r\n\x00\x04\f ")
	if m := pjlValue.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// DecodeEchoData decodes a PCL echo stream back into raw bytes. Every
// payload byte comes back as its own ECHO line.
func DecodeEchoData(b []byte) []byte {
	matches := pclEcho.FindAllSubmatch(b, -1)
	data := make([]byte, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(string(m[1]))
		if err != nil || n < 0 || n > 255 {
			continue
		}
		data = append(data, byte(n))
	}
	return data
}

// ParseIDList parses the macro directory readback into macro ids.
func ParseIDList(b []byte) []int {
	m := pclIDList.FindSubmatch(b)
	if m == nil {
		return nil
	}
	var ids []int
	for _, f := range strings.FieldsFunc(string(m[1]), func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		if n, err := strconv.Atoi(f); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

// ParsePSStat parses the four numbers the status operator reports for
// a file: two timestamps, the byte size and the page count. Devices
// disagree on timestamp order, so the smaller one is taken as creation
// time. ok is false when the reply does not carry four numbers.
func ParsePSStat(b []byte) (size, created, modified int64, ok bool) {
	var nums []int64
	for _, f := range strings.Fields(string(b)) {
		if n, err := strconv.ParseInt(f, 10, 64); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) < 4 {
		return 0, 0, 0, false
	}
	t1, t2 := nums[0], nums[1]
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	return nums[2], t1, t2, true
}
