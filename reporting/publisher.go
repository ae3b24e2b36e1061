package reporting

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Publisher archives the reports of a session and opens the report viewer
type Publisher struct {
	log    log.Logger
	layout func() Layout
	runID  string
	now    func() time.Time
	opener func(ctx context.Context, target string) error
}

func NewPublisher(logger log.Logger, layout func() Layout, runID string) *Publisher {
	return &Publisher{
		log:    logger,
		layout: layout,
		runID:  runID,
		now:    time.Now,
		opener: openInViewer,
	}
}

// Archive zips the reports directory into the archive directory and returns the archive path
func (p *Publisher) Archive(ctx context.Context) (string, error) {
	l := p.layout()
	if err := os.MkdirAll(l.ArchiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	name := fmt.Sprintf("report-%s-%s.zip", p.now().UTC().Format("20060102T150405Z"), p.runID)
	target := filepath.Join(l.ArchiveDir, name)

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(l.ReportsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// the archive dir may live inside the reports dir
		if abs, _ := filepath.Abs(path); abs == mustAbs(target) {
			return nil
		}
		rel, err := filepath.Rel(l.ReportsDir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	closeErr := zw.Close()
	fileErr := f.Close()
	for _, err := range []error{walkErr, closeErr, fileErr} {
		if err != nil {
			_ = os.Remove(target)
			return "", fmt.Errorf("failed to archive reports: %w", err)
		}
	}
	p.log.Info("Archived reports", "archive", target)
	return target, nil
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// OpenViewer opens the html report directory with the platform opener
func (p *Publisher) OpenViewer(ctx context.Context) error {
	target := p.layout().HTMLDir
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("report viewer target unavailable: %w", err)
	}
	p.log.Info("Opening report viewer", "target", target)
	return p.opener(ctx, target)
}

func openInViewer(ctx context.Context, target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	return cmd.Start()
}
