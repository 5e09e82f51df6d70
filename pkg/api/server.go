// Package api exposes the conversion service over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/willardjansen/cubby-score-conversion/pkg/converter"
	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
	"github.com/willardjansen/cubby-score-conversion/pkg/omr"
)

// musicXMLMediaType is the registered MIME type for uncompressed
// MusicXML documents.
const musicXMLMediaType = "application/vnd.recordare.musicxml+xml"

// maxUploadBytes caps the multipart form held in memory per request.
const maxUploadBytes = 64 << 20

// timestampPrefix matches the storage prefix prepended to output names.
var timestampPrefix = regexp.MustCompile(`^\d{8}_\d{6}_`)

// Handler handles conversion service API requests.
type Handler struct {
	orchestrator *converter.Orchestrator
	registry     *omr.Registry
	uploadDir    string
	outputDir    string
	logger       *logging.Logger
	startTime    time.Time
}

// NewHandler creates a new API handler.
func NewHandler(orch *converter.Orchestrator, registry *omr.Registry, uploadDir, outputDir string, logger *logging.Logger) *Handler {
	return &Handler{
		orchestrator: orch,
		registry:     registry,
		uploadDir:    uploadDir,
		outputDir:    outputDir,
		logger:       logger.WithField("component", "api"),
		startTime:    time.Now(),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Status).Methods("GET")
	r.HandleFunc("/engines", h.ListEngines).Methods("GET")
	r.HandleFunc("/convert", h.Convert).Methods("POST")
	r.HandleFunc("/download/{filename}", h.Download).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// Status returns a service banner.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "score-conversion",
		"status":  "running",
		"engines": h.engineIDs(),
	})
}

// ListEngines returns the available OMR engines and the default choice.
func (h *Handler) ListEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engines": h.registry.Descriptors(),
		"default": h.registry.DefaultID(),
	})
}

// Convert accepts a multipart upload and runs it through the selected
// engine, returning the validation report and a download link.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, omr.E(omr.KindUnsupportedMedia, "invalid multipart request body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, omr.E(omr.KindUnsupportedMedia, "missing file field"))
		return
	}
	defer file.Close()

	result, err := h.orchestrator.Convert(r.Context(), converter.Request{
		Filename: header.Filename,
		Engine:   r.FormValue("engine"),
		Content:  file,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	// filename carries the human-readable name; the timestamped storage
	// name appears only in the download URL
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"filename":     timestampPrefix.ReplaceAllString(result.OutputFilename, ""),
		"download_url": "/download/" + result.OutputFilename,
		"validation":   result.Report,
		"engine":       result.Engine,
	})
}

// Download streams a finished MusicXML artifact. The stored timestamp
// prefix is stripped from the suggested download name.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filename := vars["filename"]

	path, ok := h.orchestrator.OutputPath(filename)
	if !ok {
		h.writeError(w, omr.E(omr.KindUnsupportedMedia, "invalid filename"))
		return
	}
	if _, err := os.Stat(path); err != nil {
		h.writeError(w, omr.E(omr.KindArtifactMissing, "file not found"))
		return
	}

	downloadName := timestampPrefix.ReplaceAllString(filename, "")
	w.Header().Set("Content-Type", musicXMLMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	http.ServeFile(w, r, path)
}

// Health reports process health plus host CPU, memory and disk usage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
		"storage": map[string]bool{
			"uploads": dirWritable(h.uploadDir),
			"outputs": dirWritable(h.outputDir),
		},
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		health["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		health["memory_percent"] = vm.UsedPercent
	}
	if du, err := disk.Usage(h.outputDir); err == nil {
		health["disk_percent"] = du.UsedPercent
	}

	writeJSON(w, http.StatusOK, health)
}

// writeError maps a conversion error onto an HTTP status. A retrieval
// miss on the output store is the only 404; every processing-side
// failure, including a backend that exported nothing, is a 5xx. Only
// the sanitized message leaves the process; details stay in the logs.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := omr.KindOf(err)
	status := http.StatusInternalServerError
	switch {
	case kind.IsValidation():
		status = http.StatusBadRequest
	case kind == omr.KindArtifactMissing:
		status = http.StatusNotFound
	}

	h.logger.Warn("Request failed", map[string]interface{}{
		"kind":   string(kind),
		"status": status,
		"error":  omr.PublicMessage(err),
	})

	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   omr.PublicMessage(err),
	})
}

func (h *Handler) engineIDs() []string {
	ids := make([]string, 0)
	for _, d := range h.registry.Descriptors() {
		ids = append(ids, d.ID)
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func dirWritable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}
