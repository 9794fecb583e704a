package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ekisa-team/lector/internal/document"
	"github.com/ekisa-team/lector/internal/segment"
	"github.com/spf13/cobra"
)

var (
	splitMinLength int
	splitJSON      bool
)

var splitCmd = &cobra.Command{
	Use:   "split <file|->",
	Short: "Print the parts a text or PDF file would be narrated as",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplit,
}

func init() {
	splitCmd.Flags().IntVar(&splitMinLength, "min-length", segment.DefaultMinLength, "drop parts shorter than this many characters")
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "print parts as a JSON array")
}

func runSplit(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	parts := segment.New(splitMinLength).Parts(text)
	out := cmd.OutOrStdout()

	if splitJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(parts)
	}

	for i, part := range parts {
		fmt.Fprintf(out, "--- part %d (%s chars) ---\n%s\n\n", i, humanize.Comma(int64(len([]rune(part)))), part)
	}
	return nil
}

// readText reads name, or stdin when name is "-". PDF files are converted to
// text first.
func readText(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}

	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return document.ExtractText(name, bytes.NewReader(data), int64(len(data)))
	}
	return string(data), nil
}
