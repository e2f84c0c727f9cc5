package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
)

// SafeFilename reduces an attachment name to a base name usable inside the staging directory.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(strings.TrimSpace(name))
	switch base {
	case "", ".", "..", "/":
		return ""
	}
	return base
}

// StagedName is the filename the attachment is staged and archived under; empty when the
// attachment name is unusable. Names without a .pdf extension get one appended.
func StagedName(att *Attachment) string {
	name := SafeFilename(att.Filename)
	if name == "" {
		return ""
	}
	if _, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(name))]; !ok {
		name += ".pdf"
	}
	return name
}

// Stage writes the attachment to <staging>/<filename>, overwriting a file of the same name.
func (e *Extractor) Stage(ctx context.Context, att *Attachment) (*entity.Document, error) {
	start := time.Now()
	log := e.log(ctx)

	name := StagedName(att)
	if name == "" {
		return nil, fmt.Errorf("attachment filename %q is not usable", att.Filename)
	}

	if err := os.MkdirAll(e.stagingDir, 0o755); err != nil {
		return nil, common.NewIOError("create staging dir", err)
	}
	path := filepath.Join(e.stagingDir, name)
	if err := os.WriteFile(path, att.Data, 0o644); err != nil {
		log.Error("ingest.stage.write_failed", "path", path, "error", err)
		return nil, common.NewIOError("write staged document", err)
	}

	sum := sha256.Sum256(att.Data)
	doc := &entity.Document{
		Path:     path,
		Filename: name,
		SHA256:   hex.EncodeToString(sum[:]),
		Size:     len(att.Data),
	}
	log.Info("ingest.stage.done",
		"path", path,
		"sha256", doc.SHA256,
		"size_bytes", doc.Size,
		"elapsed_ms", elapsedMS(start),
	)
	return doc, nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
