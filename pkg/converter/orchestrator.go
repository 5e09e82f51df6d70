// Package converter holds the top-level conversion policy: request
// validation, per-job workspace discipline, engine dispatch, scoring,
// and artifact publication.
package converter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
	"github.com/willardjansen/cubby-score-conversion/pkg/metrics"
	"github.com/willardjansen/cubby-score-conversion/pkg/models"
	"github.com/willardjansen/cubby-score-conversion/pkg/omr"
	"github.com/willardjansen/cubby-score-conversion/pkg/pdfpage"
	"github.com/willardjansen/cubby-score-conversion/pkg/validate"
)

// Request is one conversion submission.
type Request struct {
	Filename string
	Engine   string
	Content  io.Reader
}

// Result is the successful outcome of a conversion.
type Result struct {
	Job            *models.ConversionJob
	OutputFilename string
	Report         *validate.Report
	Engine         string
}

// Orchestrator coordinates engines, the page coordinator and the scorer.
// Storage locations are injected so tests run against temporary
// directories; no ambient global state is consulted.
type Orchestrator struct {
	registry   *omr.Registry
	rasterizer pdfpage.Rasterizer
	uploadDir  string
	outputDir  string
	logger     *logging.Logger
	metrics    metrics.Recorder
}

// New creates an orchestrator. uploadDir holds ephemeral per-job
// workspaces; outputDir accumulates finished artifacts.
func New(registry *omr.Registry, rasterizer pdfpage.Rasterizer, uploadDir, outputDir string, logger *logging.Logger, recorder metrics.Recorder) (*Orchestrator, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Orchestrator{
		registry:   registry,
		rasterizer: rasterizer,
		uploadDir:  uploadDir,
		outputDir:  outputDir,
		logger:     logger.WithField("component", "converter"),
		metrics:    recorder,
	}, nil
}

// OutputPath resolves a stored artifact name inside the durable output
// area, rejecting names that escape it.
func (o *Orchestrator) OutputPath(filename string) (string, bool) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", false
	}
	return filepath.Join(o.outputDir, filename), true
}

// Convert runs one job end to end. All input validation happens before
// any filesystem or process work; the workspace is deleted on every
// exit path after the artifact has been copied out.
func (o *Orchestrator) Convert(ctx context.Context, req Request) (*Result, error) {
	input, ok := models.ClassifyInput(req.Filename)
	if !ok {
		return nil, omr.E(omr.KindUnsupportedMedia, "only PDF and image files (PNG, JPG) are accepted")
	}

	engine, ok := o.registry.Get(req.Engine)
	if !ok {
		return nil, omr.E(omr.KindInvalidEngine, "invalid engine %q, choose one of %v", req.Engine, o.engineIDs())
	}

	if !engine.Supports(input) {
		return nil, omr.E(omr.KindIncompatible, "engine %s does not accept %s input", engine.ID(), input)
	}

	job := models.NewConversionJob(req.Filename, engine.ID(), input)
	log := o.logger.WithField("job", job.ID)
	log.Info("Conversion started", map[string]interface{}{
		"file":   job.Filename,
		"engine": job.Engine,
		"input":  string(job.Input),
	})

	start := time.Now()
	result, err := o.run(ctx, job, engine, req.Content, start)
	if err != nil {
		log.Error("Conversion failed", map[string]interface{}{
			"error":  err.Error(),
			"detail": omr.DetailOf(err),
		})
		o.metrics.RecordConversion(engine.ID(), "failure", time.Since(start).Seconds())
		return nil, err
	}

	o.metrics.RecordConversion(engine.ID(), "success", time.Since(start).Seconds())
	log.Info("Conversion finished", map[string]interface{}{
		"output":     result.OutputFilename,
		"confidence": result.Report.OverallConfidence,
		"seconds":    result.Report.ProcessingTime,
	})
	return result, nil
}

// run performs the workspace-scoped part of the job.
func (o *Orchestrator) run(ctx context.Context, job *models.ConversionJob, engine omr.Engine, content io.Reader, start time.Time) (*Result, error) {
	workDir := filepath.Join(o.uploadDir, job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, &omr.Error{Kind: omr.KindProcessing, Message: "failed to create job workspace", Err: err}
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, job.Filename)
	if err := writeUpload(inputPath, content); err != nil {
		return nil, &omr.Error{Kind: omr.KindProcessing, Message: "failed to store uploaded file", Err: err}
	}

	artifact, pages, err := o.dispatch(ctx, job, engine, inputPath, workDir)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordPages("converted", pages.Converted)
	o.metrics.RecordPages("skipped", pages.Skipped())

	report := validate.Generate(artifact, time.Since(start), pages.Skipped())

	// publish before the deferred cleanup removes the workspace
	finalPath := filepath.Join(o.outputDir, job.OutputName())
	if err := copyOut(artifact, finalPath); err != nil {
		return nil, &omr.Error{Kind: omr.KindProcessing, Message: "failed to store output artifact", Err: err}
	}
	if info, statErr := os.Stat(finalPath); statErr == nil {
		o.metrics.RecordArtifactBytes(info.Size())
	}

	return &Result{
		Job:            job,
		OutputFilename: job.OutputName(),
		Report:         report,
		Engine:         engine.ID(),
	}, nil
}

// dispatch selects the processing path from the (engine, input) pair.
// A page engine given a PDF goes through the multi-page coordinator;
// everything else is a direct single-input conversion.
func (o *Orchestrator) dispatch(ctx context.Context, job *models.ConversionJob, engine omr.Engine, inputPath, workDir string) (string, omr.Pages, error) {
	if pageEngine, ok := engine.(omr.PageEngine); ok && job.Input == models.InputPDF {
		coordinator := omr.NewPageCoordinator(pageEngine, o.rasterizer, o.logger)
		return coordinator.Convert(ctx, inputPath, workDir)
	}

	artifact, err := engine.Convert(ctx, inputPath, workDir)
	if err != nil {
		return "", omr.Pages{}, err
	}
	return artifact, omr.Pages{Total: 1, Converted: 1}, nil
}

func (o *Orchestrator) engineIDs() []string {
	var ids []string
	for _, d := range o.registry.Descriptors() {
		ids = append(ids, d.ID)
	}
	return ids
}

func writeUpload(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, content); err != nil {
		return err
	}
	return f.Sync()
}

func copyOut(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
