package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-session/types"
)

// File names written by FileSink
const (
	SummaryJSONFile = "summary.json"
	SummaryTextFile = "summary.log"
	SummaryHTMLFile = "summary.html"
)

// FileSink writes the summary as json, plain text and html into a directory
type FileSink struct {
	dir  func() string
	tmpl *template.Template
}

func NewFileSink(dir func() string) (*FileSink, error) {
	tmpl, err := template.New("summary").Funcs(templateFuncs()).Parse(summaryTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse summary template: %w", err)
	}
	return &FileSink{dir: dir, tmpl: tmpl}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Emit(_ context.Context, summary *types.ExecutionSummary) error {
	dir := s.dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryJSONFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, SummaryTextFile), []byte(FormatText(summary)), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, summary); err != nil {
		return fmt.Errorf("failed to render html summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryHTMLFile), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write html summary: %w", err)
	}
	return nil
}

// FormatText renders the plain text summary
func FormatText(summary *types.ExecutionSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "RUN ID: %s\n", summary.RunID)
	fmt.Fprintf(&sb, "STATUS: %s\n", summary.Status())
	fmt.Fprintf(&sb, "DURATION: %s\n", formatDuration(summary.Duration()))
	fmt.Fprintf(&sb, "TOTAL: %d  PASSED: %d  FAILED: %d  SKIPPED: %d\n\n",
		summary.Total(), summary.Passed, summary.Failed, summary.Skipped)
	for _, c := range summary.Cases {
		fmt.Fprintf(&sb, "%s %-7s %s\n", c.StatusIcon, c.StatusLabel, c.SuiteQualifiedName)
		if c.ErrorMessage != "" {
			for _, line := range strings.Split(c.ErrorMessage, "\n") {
				fmt.Fprintf(&sb, "    %s\n", line)
			}
		}
	}
	return sb.String()
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.UTC().Format(time.RFC3339)
		},
		"statusClass": func(label string) string {
			return strings.ToLower(label)
		},
	}
}
