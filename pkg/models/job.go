package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InputType classifies the uploaded score file
type InputType string

const (
	InputPDF   InputType = "pdf"
	InputImage InputType = "image"
)

// imageExtensions are the raster formats accepted for page-oriented engines
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// ClassifyInput determines the input type from the uploaded filename.
// Only PDF and raster image scores are accepted.
func ClassifyInput(filename string) (InputType, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return InputPDF, true
	case imageExtensions[ext]:
		return InputImage, true
	default:
		return "", false
	}
}

// ConversionJob identifies one end-to-end conversion request.
// The ID is globally unique and keys the job workspace; the Timestamp is
// a human-readable field embedded in the public output name.
type ConversionJob struct {
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Filename  string    `json:"filename"`
	Engine    string    `json:"engine"`
	Input     InputType `json:"input_type"`
	CreatedAt time.Time `json:"created_at"`
}

// NewConversionJob creates a job for an uploaded file.
func NewConversionJob(filename, engine string, input InputType) *ConversionJob {
	now := time.Now()
	return &ConversionJob{
		ID:        uuid.New().String(),
		Timestamp: now.Format("20060102_150405"),
		Filename:  filepath.Base(filename),
		Engine:    engine,
		Input:     input,
		CreatedAt: now,
	}
}

// Stem returns the original filename without its extension.
func (j *ConversionJob) Stem() string {
	base := filepath.Base(j.Filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputName is the public download handle for the finished artifact.
func (j *ConversionJob) OutputName() string {
	return fmt.Sprintf("%s_%s.musicxml", j.Timestamp, j.Stem())
}

// PageResult records the outcome of one rasterized page processed by a
// page-oriented engine. An empty Artifact means the page failed and was
// skipped.
type PageResult struct {
	Index    int    `json:"index"`
	Artifact string `json:"artifact,omitempty"`
}

// EngineDescriptor is a static registry entry describing one OMR backend.
type EngineDescriptor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	AcceptsImages bool   `json:"accepts_images"`
}

// Accepts reports whether the backend can process the given input type.
// Every backend accepts PDF; only page-oriented ones accept raster images.
func (d EngineDescriptor) Accepts(input InputType) bool {
	if input == InputImage {
		return d.AcceptsImages
	}
	return true
}
