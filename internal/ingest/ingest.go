package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ContentTypePDF is the only document type the pipeline accepts.
	ContentTypePDF = "application/pdf"

	// MaxDocumentSize is the maximum allowed size for an uploaded document (50 MB).
	MaxDocumentSize = 50 * 1024 * 1024

	// MinTextLength is the least amount of extracted text worth scripting.
	MinTextLength = 100

	// PreviewLength is how much extracted text the upload preview carries.
	PreviewLength = 500

	// MaxPromptChars caps how much document text is sent for script generation.
	MaxPromptChars = 12000
)

// ErrUnsupportedType is returned when a document is not a PDF.
var ErrUnsupportedType = errors.New("please upload a PDF file")

var pdfMagic = []byte("%PDF-")

// Document is a user-selected input file held in memory.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the document size in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.Data))
}

// Open reads a document from disk. The content type is detected from the file
// contents, so a renamed non-PDF is still rejected by Validate.
func Open(path string) (*Document, error) {
	if err := validateFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", path, err)
	}
	return &Document{
		Name:        filepath.Base(path),
		ContentType: DetectContentType(data),
		Data:        data,
	}, nil
}

// DetectContentType reports ContentTypePDF for data starting with the PDF
// header and application/octet-stream otherwise.
func DetectContentType(data []byte) string {
	if bytes.HasPrefix(data, pdfMagic) {
		return ContentTypePDF
	}
	return "application/octet-stream"
}

// Validate rejects anything that is not a PDF. It runs before any stage
// operation, so a rejected document never reaches the upload collaborator.
func Validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("no document selected")
	}
	if doc.ContentType != ContentTypePDF {
		return fmt.Errorf("%s: %w", doc.Name, ErrUnsupportedType)
	}
	if !strings.EqualFold(filepath.Ext(doc.Name), ".pdf") {
		return fmt.Errorf("%s: %w", doc.Name, ErrUnsupportedType)
	}
	if doc.Size() > MaxDocumentSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", doc.Name, doc.Size()/(1024*1024), MaxDocumentSize/(1024*1024))
	}
	return nil
}

// Preview returns the first PreviewLength characters of text, with an
// ellipsis when it was cut.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) > PreviewLength {
		return string(runes[:PreviewLength]) + "..."
	}
	return text
}

// Truncate cuts text to at most n characters.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n])
	}
	return text
}

// FormatSize renders a byte count the way the upload panel shows it.
func FormatSize(n int64) string {
	if n == 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d Bytes", n)
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", size), "0"), ".")
	return s + " " + units[i]
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > MaxDocumentSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), MaxDocumentSize/(1024*1024))
	}
	return nil
}
