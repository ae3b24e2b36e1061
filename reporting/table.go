package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-session/types"
)

// formatDuration renders short durations in milliseconds
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// getResultString returns a short marker for an outcome
func getResultString(outcome types.Outcome) string {
	switch outcome {
	case types.OutcomePassed:
		return "✓ pass"
	case types.OutcomeSkipped:
		return "- skip"
	default:
		return "✗ fail"
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func styleFor(outcome types.Outcome) table.Style {
	switch outcome {
	case types.OutcomePassed:
		return table.StyleColoredBlackOnGreenWhite
	case types.OutcomeSkipped:
		return table.StyleColoredBlackOnYellowWhite
	default:
		return table.StyleColoredBlackOnRedWhite
	}
}

// RenderSummaryTable writes the per-test results table of a closed session
func RenderSummaryTable(w io.Writer, summary *types.ExecutionSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Session Results (%s)", formatDuration(summary.Duration())))

	t.AppendHeader(table.Row{
		"Suite", "Test", "Passed", "Failed", "Skipped", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", AutoMerge: true, WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, c := range summary.Cases {
		outcome := types.Outcome(c.StatusLabel)
		t.AppendRow(table.Row{
			suiteOf(c),
			c.DisplayName,
			boolToInt(outcome == types.OutcomePassed),
			boolToInt(outcome == types.OutcomeFailed),
			boolToInt(outcome == types.OutcomeSkipped),
			getResultString(outcome),
			firstLine(c.ErrorMessage),
		})
	}

	t.SetStyle(styleFor(summary.Status()))
	t.AppendFooter(table.Row{
		"TOTAL",
		summary.Total(),
		summary.Passed,
		summary.Failed,
		summary.Skipped,
		getResultString(summary.Status()),
		"",
	})
	t.Render()
}

// RenderVersionBanner writes the start-of-session banner
func RenderVersionBanner(w io.Writer, name, version string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{name, version})
	t.Render()
}

// RenderClosureBanner writes the end-of-session banner
func RenderClosureBanner(w io.Writer, summary *types.ExecutionSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Session Closed")
	t.AppendHeader(table.Row{"Run", "Total", "Passed", "Failed", "Skipped", "Pass Rate", "Duration", "Status"})
	t.AppendRow(table.Row{
		summary.RunID,
		summary.Total(),
		summary.Passed,
		summary.Failed,
		summary.Skipped,
		fmt.Sprintf("%.1f%%", summary.Tally().PassRate()),
		formatDuration(summary.Duration()),
		getResultString(summary.Status()),
	})
	t.SetStyle(styleFor(summary.Status()))
	t.Render()
}

func suiteOf(c types.SummaryRecord) string {
	if idx := strings.LastIndex(c.SuiteQualifiedName, "."+c.DisplayName); idx > 0 {
		return c.SuiteQualifiedName[:idx]
	}
	return c.SuiteQualifiedName
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return s[:idx]
	}
	return s
}
