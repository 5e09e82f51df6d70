package omr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
	"github.com/willardjansen/cubby-score-conversion/pkg/models"
)

// Homr drives the ML-based OMR CLI. The backend recognizes one raster
// image at a time and writes its output next to the input file, so each
// image is first copied into a dedicated output directory. There is no
// upfront existence check: a missing executable surfaces as a launch
// failure.
type Homr struct {
	path     string
	caBundle string
	timeout  time.Duration
	logger   *logging.Logger
}

// NewHomr creates the page adapter. caBundle, when set, is forwarded to
// the subprocess for its own outbound TLS calls (model downloads).
func NewHomr(path, caBundle string, timeout time.Duration, logger *logging.Logger) *Homr {
	if path == "" {
		path = "homr"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Homr{path: path, caBundle: caBundle, timeout: timeout, logger: logger.WithField("engine", "homr")}
}

func (h *Homr) ID() string { return "homr" }

func (h *Homr) Descriptor() models.EngineDescriptor {
	return models.EngineDescriptor{
		ID:            "homr",
		Name:          "homr",
		Description:   "ML-based OMR, better for scanned/older scores",
		AcceptsImages: true,
	}
}

func (h *Homr) Supports(input models.InputType) bool {
	return input == models.InputPDF || input == models.InputImage
}

// Convert processes a single raster image.
func (h *Homr) Convert(ctx context.Context, inputPath, workDir string) (string, error) {
	outDir := filepath.Join(workDir, "homr_output")
	return h.Recognize(ctx, inputPath, outDir, make(map[string]bool))
}

// Recognize runs the backend on one image. The claimed set marks
// artifacts already attributed to earlier pages of the same job; a
// fallback scan never reuses them.
func (h *Homr) Recognize(ctx context.Context, imagePath, outDir string, claimed map[string]bool) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", &Error{Kind: KindProcessing, Message: "failed to prepare output directory", Err: err}
	}

	workImg := filepath.Join(outDir, filepath.Base(imagePath))
	if workImg != imagePath {
		if err := copyFile(imagePath, workImg); err != nil {
			return "", &Error{Kind: KindProcessing, Message: "failed to stage input image", Err: err}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.path, workImg)
	cmd.Env = h.env()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	h.logger.Debug("Running homr", map[string]interface{}{"cmd": strings.Join(cmd.Args, " ")})

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("recognition timed out after %s", h.timeout),
			Detail:  stderr.String(),
		}
	}
	if err != nil {
		// a non-zero exit does not preclude usable output; only a
		// launch failure is conclusive
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", &Error{
				Kind:    KindProcessing,
				Message: "failed to launch OMR backend",
				Detail:  fmt.Sprintf("executable %s: %v", h.path, err),
				Err:     err,
			}
		}
		h.logger.Warn("homr exited non-zero", map[string]interface{}{"stderr": stderr.String()})
	}

	// expected: same stem, document extension, next to the staged input
	expected := strings.TrimSuffix(workImg, filepath.Ext(workImg)) + documentExt
	if _, statErr := os.Stat(expected); statErr == nil {
		claimed[expected] = true
		return expected, nil
	}

	// fall back to any unclaimed document in the output directory
	matches, _ := filepath.Glob(filepath.Join(outDir, "*"+documentExt))
	for _, m := range matches {
		if !claimed[m] {
			claimed[m] = true
			return m, nil
		}
	}

	return "", &Error{
		Kind:    KindProcessing,
		Message: "backend produced no score document",
		Detail:  fmt.Sprintf("no %s for %s; stderr: %s; contents: %v", documentExt, filepath.Base(imagePath), stderr.String(), listTree(outDir)),
	}
}

// env forwards the certificate bundle the backend needs for its own
// outbound network calls.
func (h *Homr) env() []string {
	env := os.Environ()
	if h.caBundle != "" {
		env = append(env,
			"SSL_CERT_FILE="+h.caBundle,
			"REQUESTS_CA_BUNDLE="+h.caBundle,
		)
	}
	return env
}

func copyFile(src, dst string) error {
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
