package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum-optimism/infra/op-session/properties"
)

// Default directory names, relative to the working directory
const (
	DefaultReportsDir = "reports"
	ResultsDirName    = "results"
	HTMLDirName       = "html"
	SummaryDirName    = "summary"
	ArchiveDirName    = "archive"
)

// Layout is the project directory structure a session writes into
type Layout struct {
	ReportsDir string
	ResultsDir string
	HTMLDir    string
	SummaryDir string
	ArchiveDir string
}

// NewLayout derives the layout from a reports root
func NewLayout(reportsDir string) Layout {
	if reportsDir == "" {
		reportsDir = DefaultReportsDir
	}
	return Layout{
		ReportsDir: reportsDir,
		ResultsDir: filepath.Join(reportsDir, ResultsDirName),
		HTMLDir:    filepath.Join(reportsDir, HTMLDirName),
		SummaryDir: filepath.Join(reportsDir, SummaryDirName),
		ArchiveDir: filepath.Join(filepath.Dir(filepath.Clean(reportsDir)), ArchiveDirName),
	}
}

// LayoutFromProperties applies the directory overrides found in p
func LayoutFromProperties(p *properties.Properties) Layout {
	l := NewLayout(p.String(properties.KeyReportsDir, DefaultReportsDir))
	l.SummaryDir = p.String(properties.KeySummaryDir, l.SummaryDir)
	l.ArchiveDir = p.String(properties.KeyArchiveDir, l.ArchiveDir)
	return l
}

// Dirs returns every directory of the layout
func (l Layout) Dirs() []string {
	return []string{l.ReportsDir, l.ResultsDir, l.HTMLDir, l.SummaryDir, l.ArchiveDir}
}

// Ensure creates all directories of the layout
func (l Layout) Ensure(ctx context.Context) error {
	for _, dir := range l.Dirs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
