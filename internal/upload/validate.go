package upload

import (
	"fmt"
	"path/filepath"
	"strings"
)

// allowedExtensions is the closed set of file types the pipeline knows how
// to process. Everything else is rejected at the door rather than failing
// deep inside a parser.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".pptx": true,
	".xlsx": true,
	".html": true,
	".txt":  true,
	".eml":  true,
	".rtf":  true,
	".epub": true,
	".xml":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// imageExtensions marks the subset of allowed extensions that go through
// OCR instead of structural parsing.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// IsImageExtension reports whether ext (with leading dot, any case) is an
// image format handled via OCR.
func IsImageExtension(ext string) bool {
	return imageExtensions[strings.ToLower(ext)]
}

func validateRequest(req Request, maxSize int64) error {
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		return &ValidationError{Field: "filename", Reason: "must not be empty"}
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return &ValidationError{Field: "filename", Reason: "must not contain path separators or traversal sequences"}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return &ValidationError{Field: "filename", Reason: "missing file extension"}
	}
	if !allowedExtensions[ext] {
		return &ValidationError{Field: "filename", Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}
	if len(req.Data) == 0 {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if int64(len(req.Data)) > maxSize {
		return &ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("size %d exceeds limit of %d bytes", len(req.Data), maxSize),
		}
	}
	return nil
}
