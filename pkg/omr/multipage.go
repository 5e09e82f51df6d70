package omr

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
	"github.com/willardjansen/cubby-score-conversion/pkg/models"
	"github.com/willardjansen/cubby-score-conversion/pkg/musicxml"
	"github.com/willardjansen/cubby-score-conversion/pkg/pdfpage"
)

// Pages summarizes per-page outcomes of a multi-page conversion so that
// silent content loss stays observable to the caller.
type Pages struct {
	Total              int `json:"total"`
	Converted          int `json:"converted"`
	SkippedRecognition int `json:"skipped_recognition"`
	SkippedMerge       int `json:"skipped_merge"`
}

// Skipped is the number of pages absent from the final artifact.
func (p Pages) Skipped() int {
	return p.SkippedRecognition + p.SkippedMerge
}

// PageCoordinator feeds a multi-page PDF through a page-oriented engine:
// rasterize, recognize page by page, merge. Pages are processed
// sequentially to bound resource usage. A failed page is skipped, never
// retried, and only a fully failed document aborts the job.
type PageCoordinator struct {
	engine     PageEngine
	rasterizer pdfpage.Rasterizer
	logger     *logging.Logger
}

// NewPageCoordinator builds a coordinator around a page engine.
func NewPageCoordinator(engine PageEngine, rasterizer pdfpage.Rasterizer, logger *logging.Logger) *PageCoordinator {
	return &PageCoordinator{
		engine:     engine,
		rasterizer: rasterizer,
		logger:     logger.WithField("component", "multipage"),
	}
}

// Convert converts a PDF and returns the canonical artifact path plus
// the per-page accounting.
func (c *PageCoordinator) Convert(ctx context.Context, pdfPath, workDir string) (string, Pages, error) {
	var pages Pages

	images, err := c.rasterizer.Pages(ctx, pdfPath, filepath.Join(workDir, "pages"))
	if err != nil {
		return "", pages, &Error{Kind: KindProcessing, Message: "failed to rasterize PDF", Err: err}
	}
	pages.Total = len(images)
	c.logger.Info("PDF rasterized", map[string]interface{}{"pages": len(images)})

	outDir := filepath.Join(workDir, "homr_output")
	claimed := make(map[string]bool)
	var results []models.PageResult

	for i, img := range images {
		artifact, err := c.engine.Recognize(ctx, img, outDir, claimed)
		if err != nil {
			pages.SkippedRecognition++
			c.logger.Warn("Page skipped", map[string]interface{}{
				"page":  i,
				"error": err.Error(),
			})
			results = append(results, models.PageResult{Index: i})
			continue
		}
		results = append(results, models.PageResult{Index: i, Artifact: artifact})
	}

	var succeeded []models.PageResult
	for _, r := range results {
		if r.Artifact != "" {
			succeeded = append(succeeded, r)
		}
	}
	pages.Converted = len(succeeded)

	switch len(succeeded) {
	case 0:
		return "", pages, &Error{
			Kind:    KindNoContent,
			Message: "no musical content recognized in any page",
		}
	case 1:
		// single page passes through verbatim, preserving full fidelity
		return succeeded[0].Artifact, pages, nil
	}

	// parse each page document and append its parts in page order
	var scores []*musicxml.Score
	for _, r := range succeeded {
		score, err := musicxml.Parse(r.Artifact)
		if err != nil {
			pages.SkippedMerge++
			pages.Converted--
			c.logger.Warn("Page dropped from merge", map[string]interface{}{
				"page":  r.Index,
				"error": err.Error(),
			})
			continue
		}
		scores = append(scores, score)
	}

	if len(scores) == 0 {
		return "", pages, &Error{
			Kind:    KindNoContent,
			Message: "no musical content recognized in any page",
		}
	}
	combined := musicxml.Merge(scores)

	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	mergedPath := filepath.Join(outDir, stem+documentExt)
	if err := combined.WriteFile(mergedPath); err != nil {
		return "", pages, &Error{Kind: KindProcessing, Message: "failed to write merged score", Err: err}
	}
	return mergedPath, pages, nil
}
