package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
	"github.com/willardjansen/cubby-score-conversion/pkg/models"
	"github.com/willardjansen/cubby-score-conversion/pkg/omr"
)

const stubScore = `<score-partwise>
  <work><work-title>Prelude</work-title></work>
  <part-list><score-part id="P1"><part-name>Organ</part-name></score-part></part-list>
  <part id="P1">
    <measure number="1">
      <attributes><clef><sign>G</sign></clef><time><beats>4</beats><beat-type>4</beat-type></time></attributes>
      <note><pitch><step>C</step><octave>4</octave></pitch></note>
    </measure>
  </part>
</score-partwise>`

// stubEngine is a canned-result engine for orchestration tests.
type stubEngine struct {
	id            string
	acceptsImages bool
	err           error
	convertCalled bool
}

func (s *stubEngine) ID() string { return s.id }

func (s *stubEngine) Descriptor() models.EngineDescriptor {
	return models.EngineDescriptor{ID: s.id, Name: s.id, AcceptsImages: s.acceptsImages}
}

func (s *stubEngine) Supports(input models.InputType) bool {
	return models.EngineDescriptor{AcceptsImages: s.acceptsImages}.Accepts(input)
}

func (s *stubEngine) Convert(ctx context.Context, inputPath, workDir string) (string, error) {
	s.convertCalled = true
	if s.err != nil {
		return "", s.err
	}
	out := filepath.Join(workDir, "out.musicxml")
	if err := os.WriteFile(out, []byte(stubScore), 0644); err != nil {
		return "", err
	}
	return out, nil
}

type fixture struct {
	orch      *Orchestrator
	uploadDir string
	outputDir string
	engine    *stubEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := &stubEngine{id: "audiveris"}
	registry := omr.NewRegistry(engine)
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	outputDir := filepath.Join(t.TempDir(), "outputs")
	orch, err := New(registry, nil, uploadDir, outputDir, logging.NewLogger(logging.FATAL, false), nil)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{orch: orch, uploadDir: uploadDir, outputDir: outputDir, engine: engine}
}

func (f *fixture) workspaceCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestConvertSuccess(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.Convert(context.Background(), Request{
		Filename: "prelude.pdf",
		Engine:   "audiveris",
		Content:  strings.NewReader("%PDF-1.4"),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.HasSuffix(result.OutputFilename, "_prelude.musicxml") {
		t.Errorf("output filename = %s", result.OutputFilename)
	}
	if result.Report == nil || result.Report.Metadata.Title != "Prelude" {
		t.Errorf("report = %+v", result.Report)
	}
	if result.Report.OverallConfidence <= 0 || result.Report.OverallConfidence > 100 {
		t.Errorf("overall confidence out of range: %v", result.Report.OverallConfidence)
	}

	// artifact is durable
	stored := filepath.Join(f.outputDir, result.OutputFilename)
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("stored artifact missing: %v", err)
	}
	if !strings.Contains(string(data), "Prelude") {
		t.Error("stored artifact content wrong")
	}

	// workspace is gone
	if n := f.workspaceCount(t); n != 0 {
		t.Errorf("leftover workspaces = %d", n)
	}
}

func TestConvertRejectsUnsupportedMediaBeforeAnyWork(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Convert(context.Background(), Request{
		Filename: "notes.txt",
		Engine:   "audiveris",
		Content:  strings.NewReader("x"),
	})
	if omr.KindOf(err) != omr.KindUnsupportedMedia {
		t.Fatalf("kind = %s, want %s", omr.KindOf(err), omr.KindUnsupportedMedia)
	}
	if f.engine.convertCalled {
		t.Error("engine invoked despite rejection")
	}
	if n := f.workspaceCount(t); n != 0 {
		t.Errorf("workspace created despite rejection: %d", n)
	}
}

func TestConvertRejectsUnknownEngine(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Convert(context.Background(), Request{
		Filename: "score.pdf",
		Engine:   "tesseract",
		Content:  strings.NewReader("x"),
	})
	if omr.KindOf(err) != omr.KindInvalidEngine {
		t.Errorf("kind = %s, want %s", omr.KindOf(err), omr.KindInvalidEngine)
	}
}

func TestConvertRejectsIncompatiblePair(t *testing.T) {
	f := newFixture(t) // stub engine is PDF-only

	_, err := f.orch.Convert(context.Background(), Request{
		Filename: "page.png",
		Engine:   "audiveris",
		Content:  strings.NewReader("x"),
	})
	if omr.KindOf(err) != omr.KindIncompatible {
		t.Fatalf("kind = %s, want %s", omr.KindOf(err), omr.KindIncompatible)
	}
	if n := f.workspaceCount(t); n != 0 {
		t.Errorf("workspace created despite rejection: %d", n)
	}
}

func TestConvertEmptyEngineUsesDefault(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.Convert(context.Background(), Request{
		Filename: "score.pdf",
		Engine:   "",
		Content:  strings.NewReader("%PDF"),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if result.Engine != "audiveris" {
		t.Errorf("engine = %s, want default", result.Engine)
	}
}

func TestConvertCleansWorkspaceOnEngineFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.err = omr.E(omr.KindTimeout, "recognition timed out")

	_, err := f.orch.Convert(context.Background(), Request{
		Filename: "score.pdf",
		Engine:   "audiveris",
		Content:  strings.NewReader("%PDF"),
	})
	if omr.KindOf(err) != omr.KindTimeout {
		t.Fatalf("kind = %s, want %s", omr.KindOf(err), omr.KindTimeout)
	}
	if n := f.workspaceCount(t); n != 0 {
		t.Errorf("leftover workspaces after failure = %d", n)
	}

	// no artifact published
	entries, _ := os.ReadDir(f.outputDir)
	if len(entries) != 0 {
		t.Errorf("artifacts published on failure: %d", len(entries))
	}
}

func TestConvertDispatchesPDFThroughPageCoordinator(t *testing.T) {
	// a page engine receiving a PDF must go through rasterize+merge
	pageEngine := &stubPageEngine{id: "homr"}
	registry := omr.NewRegistry(pageEngine)
	orch, err := New(registry, &stubRasterizer{pages: 2},
		filepath.Join(t.TempDir(), "up"), filepath.Join(t.TempDir(), "out"),
		logging.NewLogger(logging.FATAL, false), nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Convert(context.Background(), Request{
		Filename: "book.pdf",
		Engine:   "homr",
		Content:  strings.NewReader("%PDF"),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if pageEngine.recognized != 2 {
		t.Errorf("recognized pages = %d, want 2", pageEngine.recognized)
	}
	if pageEngine.directConvert {
		t.Error("PDF input must not hit the single-image path")
	}
	if result.Report.SkippedPages != 0 {
		t.Errorf("skipped pages = %d", result.Report.SkippedPages)
	}
}

func TestConvertImageBypassesCoordinator(t *testing.T) {
	pageEngine := &stubPageEngine{id: "homr"}
	registry := omr.NewRegistry(pageEngine)
	orch, err := New(registry, &stubRasterizer{pages: 1},
		filepath.Join(t.TempDir(), "up"), filepath.Join(t.TempDir(), "out"),
		logging.NewLogger(logging.FATAL, false), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = orch.Convert(context.Background(), Request{
		Filename: "page.png",
		Engine:   "homr",
		Content:  strings.NewReader("img"),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !pageEngine.directConvert {
		t.Error("image input should use the direct single-image path")
	}
	if pageEngine.recognized != 1 {
		t.Errorf("recognize calls = %d, want 1", pageEngine.recognized)
	}
}

func TestOutputPathRejectsTraversal(t *testing.T) {
	f := newFixture(t)

	if _, ok := f.orch.OutputPath("../secret"); ok {
		t.Error("traversal name accepted")
	}
	if _, ok := f.orch.OutputPath("a/b.musicxml"); ok {
		t.Error("nested name accepted")
	}
	if _, ok := f.orch.OutputPath(""); ok {
		t.Error("empty name accepted")
	}
	if _, ok := f.orch.OutputPath("20240101_120000_score.musicxml"); !ok {
		t.Error("plain name rejected")
	}
}

// stubPageEngine implements omr.PageEngine.
type stubPageEngine struct {
	id            string
	recognized    int
	directConvert bool
}

func (s *stubPageEngine) ID() string { return s.id }

func (s *stubPageEngine) Descriptor() models.EngineDescriptor {
	return models.EngineDescriptor{ID: s.id, AcceptsImages: true}
}

func (s *stubPageEngine) Supports(models.InputType) bool { return true }

func (s *stubPageEngine) Convert(ctx context.Context, inputPath, workDir string) (string, error) {
	s.directConvert = true
	return s.Recognize(ctx, inputPath, filepath.Join(workDir, "homr_output"), make(map[string]bool))
}

func (s *stubPageEngine) Recognize(ctx context.Context, imagePath, outDir string, claimed map[string]bool) (string, error) {
	s.recognized++
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	out := filepath.Join(outDir, fmt.Sprintf("page_%d.musicxml", s.recognized))
	if err := os.WriteFile(out, []byte(stubScore), 0644); err != nil {
		return "", err
	}
	claimed[out] = true
	return out, nil
}

// stubRasterizer fabricates page images.
type stubRasterizer struct {
	pages int
}

func (s *stubRasterizer) Pages(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	var paths []string
	for i := 1; i <= s.pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i))
		if err := os.WriteFile(p, []byte("img"), 0644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
