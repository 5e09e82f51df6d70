package pdfpage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakePdftoppm builds a script that mimics pdftoppm by writing page files
// next to the output prefix it receives as its last argument.
func fakePdftoppm(t *testing.T, pages int) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "pdftoppm")
	body := "#!/bin/sh\nexit 0\n"
	if pages > 0 {
		// args: -png -r <dpi> <pdf> <prefix>
		body = fmt.Sprintf("#!/bin/sh\nprefix=\"$5\"\nfor i in $(seq 1 %d); do : > \"$prefix-$i.png\"; done\n", pages)
	}
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestPagesOrdersNumerically(t *testing.T) {
	r := NewPoppler(fakePdftoppm(t, 12), 300, 0)
	outDir := filepath.Join(t.TempDir(), "pages")

	pages, err := r.Pages(context.Background(), "score.pdf", outDir)
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if len(pages) != 12 {
		t.Fatalf("page count = %d, want 12", len(pages))
	}
	// lexical sort would place page-10 before page-2
	if filepath.Base(pages[1]) != "page-2.png" {
		t.Errorf("second page = %s, want page-2.png", filepath.Base(pages[1]))
	}
	if filepath.Base(pages[11]) != "page-12.png" {
		t.Errorf("last page = %s, want page-12.png", filepath.Base(pages[11]))
	}
}

func TestPagesFailsWhenNoOutput(t *testing.T) {
	r := NewPoppler(fakePdftoppm(t, 0), 300, 0)
	if _, err := r.Pages(context.Background(), "score.pdf", t.TempDir()); err == nil {
		t.Error("expected error when rasterizer produces no pages")
	}
}

func TestPagesFailsOnMissingExecutable(t *testing.T) {
	r := NewPoppler("/nonexistent/pdftoppm", 300, 0)
	if _, err := r.Pages(context.Background(), "score.pdf", t.TempDir()); err == nil {
		t.Error("expected error for missing executable")
	}
}

func TestNewPopplerDefaults(t *testing.T) {
	r := NewPoppler("", 0, 0)
	if r.Executable != "pdftoppm" || r.DPI != 300 || r.Timeout != 300*time.Second {
		t.Errorf("defaults = %q/%d/%s", r.Executable, r.DPI, r.Timeout)
	}
}

func TestPagesTimesOutOnHungRasterizer(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "pdftoppm")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0755); err != nil {
		t.Fatal(err)
	}

	r := NewPoppler(script, 300, 0)
	r.Timeout = 100 * time.Millisecond

	_, err := r.Pages(context.Background(), "score.pdf", filepath.Join(t.TempDir(), "pages"))
	if err == nil {
		t.Fatal("expected timeout error from hung rasterizer")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want rasterization timeout", err)
	}
}
