// Package ingest turns a raw email into a staged invoice document.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
)

// ErrUnparseable is returned when the raw bytes are not a readable MIME message.
var ErrUnparseable = errors.New("unparseable message")

// Attachment is the located invoice part before it is written to disk.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Extractor locates the invoice attachment of a message and stages it on disk.
type Extractor struct {
	stagingDir string
	logger     *slog.Logger
}

// NewExtractor returns an Extractor writing into stagingDir.
func NewExtractor(stagingDir string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{stagingDir: stagingDir, logger: logger}
}

// Extract locates and stages the invoice document of raw. A nil document with a nil error
// means the message carries no invoice.
func (e *Extractor) Extract(ctx context.Context, raw []byte) (*entity.Document, error) {
	att, err := e.Locate(ctx, raw)
	if err != nil || att == nil {
		return nil, err
	}
	return e.Stage(ctx, att)
}

func (e *Extractor) log(ctx context.Context) *slog.Logger {
	return common.LoggerFromContext(ctx, e.logger)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
