package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	// Convert flags
	convertEngine string
	convertOutDir string
	skipDownload  bool
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a score scan to MusicXML",
	Long:  `Upload a PDF or image of sheet music, run it through a recognition engine, and save the resulting MusicXML file together with its validation report.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVar(&convertEngine, "engine", "", "recognition engine (default: server's default engine)")
	convertCmd.Flags().StringVar(&convertOutDir, "out", ".", "directory to save the MusicXML file into")
	convertCmd.Flags().BoolVar(&skipDownload, "no-download", false, "print the report only, do not fetch the artifact")
}

type validationReport struct {
	Metadata struct {
		Title       string   `json:"title"`
		Composer    string   `json:"composer"`
		Instruments []string `json:"instruments"`
		Confidence  int      `json:"confidence"`
	} `json:"metadata"`
	Clefs struct {
		Detected   int      `json:"detected"`
		Types      []string `json:"types"`
		Confidence int      `json:"confidence"`
	} `json:"clefs"`
	TimeSignatures struct {
		Detected   []string `json:"detected"`
		Confidence int      `json:"confidence"`
	} `json:"timeSignatures"`
	Tempos struct {
		Detected   []string `json:"detected"`
		Confidence int      `json:"confidence"`
	} `json:"tempos"`
	Notes struct {
		Count      int `json:"count"`
		Rests      int `json:"rests"`
		Confidence int `json:"confidence"`
	} `json:"notes"`
	OverallConfidence float64 `json:"overallConfidence"`
	ProcessingTime    float64 `json:"processingTime"`
	SkippedPages      int     `json:"skippedPages"`
	Error             string  `json:"error,omitempty"`
}

type convertResponse struct {
	Success     bool              `json:"success"`
	Filename    string            `json:"filename"`
	DownloadURL string            `json:"download_url"`
	Validation  *validationReport `json:"validation"`
	Engine      string            `json:"engine"`
	Error       string            `json:"error,omitempty"`
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(inputPath))
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	if convertEngine != "" {
		if err := writer.WriteField("engine", convertEngine); err != nil {
			return fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}

	url := fmt.Sprintf("%s/convert", GetServerURL())
	req, err := http.NewRequest("POST", url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	fmt.Printf("Converting %s...\n", filepath.Base(inputPath))

	resp, err := GetHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to conversion service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result convertResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if !result.Success {
		return fmt.Errorf("conversion failed: %s", result.Error)
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		printReport(result.Validation, result.Engine)
	}

	// the download URL carries the stored (timestamped) name; the
	// filename field is the display name only
	storedName := strings.TrimPrefix(result.DownloadURL, "/download/")

	if skipDownload {
		fmt.Printf("\nArtifact stored on the server as %s\n", storedName)
		return nil
	}

	saved, err := fetchArtifact(storedName, convertOutDir)
	if err != nil {
		return err
	}
	fmt.Printf("\nSaved %s\n", saved)
	return nil
}

func printReport(report *validationReport, engine string) {
	if report == nil {
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Section", "Confidence", "Details")

	table.Append("Metadata", percent(report.Metadata.Confidence), metadataSummary(report))
	table.Append("Clefs", percent(report.Clefs.Confidence),
		fmt.Sprintf("%d detected: %s", report.Clefs.Detected, strings.Join(report.Clefs.Types, ", ")))
	table.Append("Time signatures", percent(report.TimeSignatures.Confidence),
		strings.Join(report.TimeSignatures.Detected, ", "))
	table.Append("Tempos", percent(report.Tempos.Confidence),
		strings.Join(report.Tempos.Detected, ", "))
	table.Append("Notes", percent(report.Notes.Confidence),
		fmt.Sprintf("%d notes, %d rests", report.Notes.Count, report.Notes.Rests))

	table.Render()

	fmt.Printf("\nEngine: %s\n", engine)
	fmt.Printf("Overall confidence: %.1f%%\n", report.OverallConfidence)
	fmt.Printf("Processing time: %.2fs\n", report.ProcessingTime)
	if report.SkippedPages > 0 {
		fmt.Printf("WARNING: %d page(s) could not be recognized and were skipped\n", report.SkippedPages)
	}
}

func metadataSummary(report *validationReport) string {
	parts := []string{}
	if report.Metadata.Title != "" {
		parts = append(parts, report.Metadata.Title)
	}
	if report.Metadata.Composer != "" {
		parts = append(parts, report.Metadata.Composer)
	}
	if len(report.Metadata.Instruments) > 0 {
		parts = append(parts, strings.Join(report.Metadata.Instruments, ", "))
	}
	return strings.Join(parts, " / ")
}

func percent(n int) string {
	return strconv.Itoa(n) + "%"
}
