package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader extracts text from PDF files. Files without a .pdf extension are
// read as plain text so the pipeline can also process .txt reports.
type PDFReader struct{}

func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

func (r *PDFReader) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return readPlainText(path)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	defer f.Close()

	text, err := extractPlainText(reader)
	if err != nil {
		// page-level extraction as a fallback; some PDFs trip the
		// whole-document text walker but yield per-page content
		text, err = extractByPage(reader)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
		}
	}

	text = collapseBlankLines(text)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return text, nil
}

func readPlainText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	text := collapseBlankLines(string(b))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return text, nil
}

func extractPlainText(reader *pdf.Reader) (string, error) {
	var buf bytes.Buffer
	rd, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	if _, err := buf.ReadFrom(rd); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractByPage(reader *pdf.Reader) (string, error) {
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", ErrEmpty
	}
	return b.String(), nil
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return strings.TrimSpace(s)
}
