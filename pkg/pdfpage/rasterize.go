// Package pdfpage rasterizes PDF scores into per-page images for
// page-oriented OMR backends. Rasterization is delegated to the poppler
// pdftoppm utility; this package only orders and collects its output.
package pdfpage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Rasterizer converts a PDF into ordered page images.
type Rasterizer interface {
	// Pages renders every page of the PDF into outDir and returns the
	// image paths in page order.
	Pages(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// Poppler rasterizes through the pdftoppm executable.
type Poppler struct {
	// Executable is the pdftoppm binary, resolved on PATH if relative.
	Executable string
	// DPI is the render resolution. 300 is sufficient for OMR accuracy.
	DPI int
	// Timeout bounds a single rasterization run.
	Timeout time.Duration
}

// NewPoppler returns a Poppler rasterizer with the given executable and DPI.
func NewPoppler(executable string, dpi int, timeout time.Duration) *Poppler {
	if executable == "" {
		executable = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Poppler{Executable: executable, DPI: dpi, Timeout: timeout}
}

var pageNumberRe = regexp.MustCompile(`-(\d+)\.png$`)

// Pages renders pdfPath into outDir as page-<n>.png files.
func (p *Poppler) Pages(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create raster directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(runCtx, p.Executable,
		"-png",
		"-r", strconv.Itoa(p.DPI),
		pdfPath,
		prefix,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pdf rasterization timed out after %s", p.Timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pdf rasterization cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pdf rasterization failed: %v: %s", err, stderr.String())
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdf rasterization produced no pages for %s", filepath.Base(pdfPath))
	}

	// pdftoppm zero-pads page numbers only past 9 pages; sort numerically
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(matches[i]) < pageNumber(matches[j])
	})
	return matches, nil
}

func pageNumber(path string) int {
	m := pageNumberRe.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
