package constants

import "strings"

// MediaTypePDF is the only attachment media type treated as an invoice.
const MediaTypePDF = "application/pdf"

// AllowedExtensions holds the extensions accepted for staged invoice documents.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// TemplateExtensions holds the template file extensions an output schema may be read from.
var TemplateExtensions = map[string]struct{}{
	"csv":  {},
	"xlsx": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDFMediaType reports whether a declared Content-Type names a PDF document.
func IsPDFMediaType(mediaType string) bool {
	return strings.EqualFold(strings.TrimSpace(mediaType), MediaTypePDF)
}
