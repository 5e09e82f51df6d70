package omr

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
	"github.com/willardjansen/cubby-score-conversion/pkg/models"
)

const (
	documentExt   = ".musicxml"
	compressedExt = ".mxl"

	// archive metadata to skip when extracting compressed documents
	archiveMetaDir       = "META-INF"
	archiveDescriptorXML = "container.xml"
)

// Audiveris drives the Java batch OMR backend. It accepts PDF input
// only and exports into a directory whose layout varies between runs,
// so output location is discovered rather than assumed.
type Audiveris struct {
	path    string
	timeout time.Duration
	logger  *logging.Logger
}

// NewAudiveris creates the batch adapter for the executable at path.
func NewAudiveris(path string, timeout time.Duration, logger *logging.Logger) *Audiveris {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Audiveris{path: path, timeout: timeout, logger: logger.WithField("engine", "audiveris")}
}

func (a *Audiveris) ID() string { return "audiveris" }

func (a *Audiveris) Descriptor() models.EngineDescriptor {
	return models.EngineDescriptor{
		ID:            "audiveris",
		Name:          "Audiveris",
		Description:   "Java-based OMR, good for clean digital scores",
		AcceptsImages: false,
	}
}

func (a *Audiveris) Supports(input models.InputType) bool {
	return input == models.InputPDF
}

// Convert runs the backend in batch mode on a PDF and returns the path
// of the uncompressed MusicXML artifact.
func (a *Audiveris) Convert(ctx context.Context, inputPath, workDir string) (string, error) {
	if _, err := os.Stat(a.path); err != nil {
		return "", &Error{
			Kind:    KindConfiguration,
			Message: "OMR backend is not available",
			Detail:  fmt.Sprintf("audiveris executable not found at %s", a.path),
			Err:     err,
		}
	}

	outDir := filepath.Join(workDir, "audiveris_output")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", &Error{Kind: KindProcessing, Message: "failed to prepare output directory", Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.path, "-batch", "-export", "-output", outDir, inputPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Debug("Running audiveris", map[string]interface{}{"cmd": strings.Join(cmd.Args, " ")})

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("recognition timed out after %s", a.timeout),
			Detail:  stderr.String(),
		}
	}
	if err != nil {
		return "", &Error{
			Kind:    KindProcessing,
			Message: "recognition failed",
			Detail:  stderr.String(),
			Err:     err,
		}
	}
	if stderr.Len() > 0 {
		a.logger.Warn("Audiveris stderr", map[string]interface{}{"stderr": stderr.String()})
	}

	artifact, err := a.discoverArtifact(outDir, inputPath)
	if err != nil {
		return "", err
	}

	if strings.EqualFold(filepath.Ext(artifact), compressedExt) {
		return extractCompressed(artifact, workDir)
	}
	return artifact, nil
}

// discoverArtifact locates the exported document. The backend places it
// either directly in the output directory or nested under a subdirectory
// named after the input stem, with either extension.
func (a *Audiveris) discoverArtifact(outDir, inputPath string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	candidates := []string{
		filepath.Join(outDir, stem, stem+compressedExt),
		filepath.Join(outDir, stem, stem+documentExt),
		filepath.Join(outDir, stem+compressedExt),
		filepath.Join(outDir, stem+documentExt),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	// fall back to a recursive scan for either extension
	var found string
	filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == compressedExt || ext == documentExt {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if found != "" {
		return found, nil
	}

	return "", &Error{
		Kind:    KindNotFound,
		Message: "backend produced no score document",
		Detail:  fmt.Sprintf("no %s/%s under %s; contents: %v", compressedExt, documentExt, outDir, listTree(outDir)),
	}
}

// extractCompressed unpacks a compressed MusicXML archive and returns
// the single meaningful document inside, skipping archive metadata.
func extractCompressed(archivePath, workDir string) (string, error) {
	extractDir := filepath.Join(workDir, "mxl_extracted")
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return "", &Error{Kind: KindProcessing, Message: "failed to prepare extraction directory", Err: err}
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", &Error{Kind: KindProcessing, Message: "failed to open compressed score", Err: err}
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(extractDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(dest, filepath.Clean(extractDir)+string(os.PathSeparator)) {
			continue // entry escapes the extraction root
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return "", &Error{Kind: KindProcessing, Message: "failed to extract compressed score", Err: err}
		}
		if err := extractEntry(f, dest); err != nil {
			return "", &Error{Kind: KindProcessing, Message: "failed to extract compressed score", Err: err}
		}
	}

	var doc string
	filepath.WalkDir(extractDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || doc != "" {
			return nil
		}
		if strings.Contains(path, archiveMetaDir) || filepath.Base(path) == archiveDescriptorXML {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".xml" || ext == documentExt {
			doc = path
			return fs.SkipAll
		}
		return nil
	})
	if doc == "" {
		return "", &Error{
			Kind:    KindNotFound,
			Message: "compressed score contained no document",
			Detail:  fmt.Sprintf("no XML document in %s; contents: %v", archivePath, listTree(extractDir)),
		}
	}
	return doc, nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// listTree returns relative paths under root, for failure diagnostics.
func listTree(root string) []string {
	var entries []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		if rel, rerr := filepath.Rel(root, path); rerr == nil {
			entries = append(entries, rel)
		}
		return nil
	})
	return entries
}
