package coloring

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// OutputWriter interface for flexible output generation
type OutputWriter interface {
	WriteColoring(result *Result, path string) error
	WriteSummary(result *Result, path string) error
	WriteAll(result *Result, outputDir string, prefix string) error
}

// FileWriter implements OutputWriter for file-based output
type FileWriter struct{}

// NewFileWriter creates a new file-based output writer
func NewFileWriter() OutputWriter {
	return &FileWriter{}
}

// Summary is the JSON summary of a run, without the per-node coloring.
type Summary struct {
	RunID       string        `json:"run_id,omitempty"`
	Nodes       int           `json:"nodes"`
	NumColors   uint32        `json:"num_colors"`
	Conflicts   uint64        `json:"conflicts"`
	Iterations  int           `json:"iterations"`
	Reason      Reason        `json:"reason"`
	Statistics  RunStatistics `json:"statistics"`
	Diagnostics *Diagnostics  `json:"diagnostics,omitempty"`
}

// NewSummary strips the coloring from a result.
func NewSummary(runID string, result *Result) Summary {
	return Summary{
		RunID:       runID,
		Nodes:       len(result.Coloring),
		NumColors:   result.NumColors,
		Conflicts:   result.Conflicts,
		Iterations:  result.Iterations,
		Reason:      result.Reason,
		Statistics:  result.Statistics,
		Diagnostics: result.Diagnostics,
	}
}

// WriteAll writes <prefix>.coloring and <prefix>.summary.json into outputDir.
func (fw *FileWriter) WriteAll(result *Result, outputDir string, prefix string) error {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	coloringPath := filepath.Join(outputDir, fmt.Sprintf("%s.coloring", prefix))
	if err := fw.WriteColoring(result, coloringPath); err != nil {
		return fmt.Errorf("failed to write coloring: %w", err)
	}

	summaryPath := filepath.Join(outputDir, fmt.Sprintf("%s.summary.json", prefix))
	if err := fw.WriteSummary(result, summaryPath); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	return nil
}

// WriteColoring writes one "node color" line per node.
func (fw *FileWriter) WriteColoring(result *Result, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for node, color := range result.Coloring {
		if _, err := fmt.Fprintf(w, "%d %d\n", node, color); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteSummary writes the run summary as indented JSON.
func (fw *FileWriter) WriteSummary(result *Result, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(NewSummary("", result))
}
