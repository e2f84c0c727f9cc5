package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

// FieldSource resolves a normalized field name to its value.
type FieldSource interface {
	Lookup(key string) (string, bool)
}

// Record is one output row aligned to a schema.
type Record struct {
	Schema  string
	Columns []string
	Values  []string
}

// NormalizeKey maps a column header to a field name: trimmed, lower-cased, spaces to underscores.
func NormalizeKey(column string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(column)), " ", "_")
}

// Project aligns the record to the schema. Columns with no matching field are empty. It never fails.
func Project(fields FieldSource, schema Schema) Record {
	rec := Record{
		Schema:  schema.Name,
		Columns: append([]string(nil), schema.Columns...),
		Values:  make([]string, len(schema.Columns)),
	}
	for i, col := range schema.Columns {
		if v, ok := fields.Lookup(NormalizeKey(col)); ok {
			rec.Values[i] = v
		}
	}
	return rec
}

// OutputFilename names the CSV written for a document and schema.
func OutputFilename(docBase, schemaName string) string {
	return docBase + "_" + schemaName + ".csv"
}

// MarkdownFilename names the transcript written for a document.
func MarkdownFilename(docBase string) string {
	return docBase + ".md"
}

// Writer writes records and transcripts into their output directories.
type Writer struct {
	csvDir      string
	markdownDir string
	logger      *slog.Logger
}

// NewWriter returns a Writer for the CSV and markdown directories.
func NewWriter(csvDir, markdownDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{csvDir: csvDir, markdownDir: markdownDir, logger: logger}
}

// WriteRecord writes the header and the single row as <docBase>_<schema>.csv and returns its path.
func (w *Writer) WriteRecord(rec Record, docBase string) (string, error) {
	start := time.Now()

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(rec.Columns); err != nil {
		return "", common.NewIOError("encode csv header", err)
	}
	if err := cw.Write(rec.Values); err != nil {
		return "", common.NewIOError("encode csv row", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", common.NewIOError("encode csv", err)
	}

	path := filepath.Join(w.csvDir, OutputFilename(docBase, rec.Schema))
	if err := WriteFileAtomic(path, buf.Bytes()); err != nil {
		w.logger.Error("export.csv.write_failed", "path", path, "error", err)
		return "", common.NewIOError("write "+path, err)
	}
	w.logger.Info("export.csv.ok",
		"schema", rec.Schema,
		"path", path,
		"columns", len(rec.Columns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}

// WriteMarkdown writes the transcript as <docBase>.md and returns its path.
func (w *Writer) WriteMarkdown(markdown, docBase string) (string, error) {
	path := filepath.Join(w.markdownDir, MarkdownFilename(docBase))
	if err := WriteFileAtomic(path, []byte(markdown)); err != nil {
		w.logger.Error("export.markdown.write_failed", "path", path, "error", err)
		return "", common.NewIOError("write "+path, err)
	}
	w.logger.Info("export.markdown.ok", "path", path, "bytes", len(markdown))
	return path, nil
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs it and renames
// it into place, so path either holds the full content or is left as it was.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
