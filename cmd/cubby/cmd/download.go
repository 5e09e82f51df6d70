package cmd

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var downloadOutDir string

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <filename>",
	Short: "Download a finished MusicXML file",
	Long:  `Download a previously converted MusicXML file from the service by its stored filename.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&downloadOutDir, "out", ".", "directory to save the file into")
}

func runDownload(cmd *cobra.Command, args []string) error {
	saved, err := fetchArtifact(args[0], downloadOutDir)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", saved)
	return nil
}

// fetchArtifact downloads a stored artifact and writes it into outDir
// under the name the service suggests.
func fetchArtifact(filename, outDir string) (string, error) {
	url := fmt.Sprintf("%s/download/%s", GetServerURL(), filename)

	resp, err := GetHTTPClient().Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to connect to conversion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	name := filename
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			name = params["filename"]
		}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outDir, filepath.Base(name))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return path, nil
}
