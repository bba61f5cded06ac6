package textextract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the text of one document page. Number is 0-based.
type Page struct {
	Number int
	Text   string
}

// ExtractedText holds the pages that yielded text. PageCount is the number of
// pages in the file, including skipped ones.
type ExtractedText struct {
	Source    string
	Pages     []Page
	PageCount int
}

// ExtractFile reads the file at path and extracts its text page by page.
// Source is set to the file's base name.
func ExtractFile(path string) (*ExtractedText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	result, err := Extract(f, info.Size(), filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	result.Source = filepath.Base(path)
	return result, nil
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch strings.ToLower(fileType) {
	case ".pdf", "pdf", "application/pdf":
		return extractPDF(data, size)
	case ".txt", "txt", "text/plain":
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("unsupported file type %q (supported: %s)", fileType, strings.Join(SupportedTypes(), ", "))
	}
}

func SupportedTypes() []string {
	return []string{".pdf", ".txt"}
}

// extractPDF keeps pages that yield text. Null pages and pages whose content
// stream cannot be decoded are skipped rather than failing the document.
func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i - 1, Text: text})
	}

	return &ExtractedText{Pages: pages, PageCount: numPages}, nil
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	_, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}

	text := string(bytes.TrimSpace(buf))
	result := &ExtractedText{PageCount: 1}
	if text != "" {
		result.Pages = []Page{{Number: 0, Text: text}}
	}
	return result, nil
}
