package entity

import (
	"path/filepath"
	"strings"
)

// Document is an invoice attachment persisted in the staging directory.
type Document struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	SHA256   string `json:"sha256"`
	Size     int    `json:"size"`
}

// BaseName is the filename without its extension; outputs are named after it.
func (d Document) BaseName() string {
	return strings.TrimSuffix(d.Filename, filepath.Ext(d.Filename))
}
