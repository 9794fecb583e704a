// Package document extracts plain text from uploaded documents.
package document

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedFormat = errors.New("document: only PDF files are supported")
	ErrInvalidDocument   = errors.New("document: file could not be parsed")
)

// ExtractText returns the text of every page of a PDF, pages separated by a
// blank line. filename selects the format by extension.
func ExtractText(filename string, r io.ReaderAt, size int64) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", ErrUnsupportedFormat
	}

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	pages := make([]string, 0, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %w", ErrInvalidDocument, i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}
