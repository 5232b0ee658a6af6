package ingestion

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// AllowedFileTypes lists the upload extensions the assistant accepts.
var AllowedFileTypes = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
}

// ExtractFile reads the file at path and returns its plain-text content
// based on the extension (with the leading dot, e.g. ".pdf").
func ExtractFile(path, fileType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return ExtractBytes(data, fileType)
}

// ExtractBytes extracts plain text from raw document bytes.
func ExtractBytes(data []byte, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".txt", ".md":
		return extractPlain(data), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", fileType)
	}
}

// DetectFileType returns the lower-cased extension of path.
func DetectFileType(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var buf bytes.Buffer
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

// wtTag matches <w:t> text nodes regardless of attributes; matching whole
// <w:p> paragraphs fails on real-world documents where the tags carry
// revision attributes.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// extractDOCX pulls the text nodes out of word/document.xml inside the
// OOXML zip.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: not a zip: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open docx body: %w", err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("read docx body: %w", err)
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("docx body word/document.xml not found")
	}

	matches := wtTag.FindAllSubmatch(docXML, -1)
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.Write(bytes.TrimSpace(m[1]))
	}
	return b.String(), nil
}

func extractPlain(data []byte) string {
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(data)
}
