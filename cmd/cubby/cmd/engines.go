package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// enginesCmd represents the engines command
var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List available recognition engines",
	Long:  `List the optical music recognition engines the service can dispatch to, and which one is used when no engine is specified.`,
	RunE:  runEngines,
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}

type engineDescriptor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	AcceptsImages bool   `json:"accepts_images"`
}

type enginesResponse struct {
	Engines []engineDescriptor `json:"engines"`
	Default string             `json:"default"`
}

func runEngines(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/engines", GetServerURL())

	resp, err := GetHTTPClient().Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to conversion service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result enginesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Inputs", "Description")

	for _, e := range result.Engines {
		inputs := "PDF"
		if e.AcceptsImages {
			inputs = "PDF, PNG, JPG"
		}
		id := e.ID
		if e.ID == result.Default {
			id = e.ID + " (default)"
		}
		table.Append(id, e.Name, inputs, e.Description)
	}

	table.Render()
	return nil
}
