package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
)

// test2json actions
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPause  = "pause"
	ActionCont   = "cont"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
	ActionBench  = "bench"
)

const maxEventSize = 16 * 1024 * 1024

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// IsTerminal reports whether the event ends a test or package
func (e TestEvent) IsTerminal() bool {
	return e.Action == ActionPass || e.Action == ActionFail || e.Action == ActionSkip
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}

// Decode reads a test2json stream and calls fn for each event. Lines that are
// not JSON events, such as build output, are skipped.
func Decode(r io.Reader, fn func(TestEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		event, err := parseTestEvent(line)
		if err != nil || event.Action == "" {
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read test events: %w", err)
	}
	return nil
}

// framing lines printed by the test binary around every test
var framingPrefixes = []string{
	"=== RUN", "=== PAUSE", "=== CONT", "=== NAME",
	"--- PASS", "--- FAIL", "--- SKIP",
}

// cleanOutput keeps the lines a test wrote itself, without ANSI codes or the
// framing of the test binary
func cleanOutput(lines []string) string {
	var b strings.Builder
	for _, raw := range lines {
		line := strings.TrimSpace(stripansi.Strip(raw))
		if line == "" || line == "PASS" || line == "FAIL" || isFraming(line) {
			continue
		}
		if strings.HasPrefix(line, "ok  ") || strings.HasPrefix(line, "FAIL\t") {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return b.String()
}

func isFraming(line string) bool {
	for _, p := range framingPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
