package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

var filenameDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// Locate scans the message parts in arrival order and returns the first PDF part that
// carries a filename. It returns nil when no such part exists.
func (e *Extractor) Locate(ctx context.Context, raw []byte) (*Attachment, error) {
	start := time.Now()
	log := e.log(ctx)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		log.Warn("ingest.locate.unparseable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	defer mr.Close()

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			log.Warn("ingest.locate.unparseable", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}

		ah := mail.AttachmentHeader{Header: partHeader(p)}
		mediaType, _, err := ah.ContentType()
		if err != nil || !constants.IsPDFMediaType(mediaType) {
			continue
		}
		name := partFilename(ah)
		if name == "" {
			log.Debug("ingest.locate.pdf_without_name")
			continue
		}

		data, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, common.NewIOError("read attachment body", err)
		}
		log.Info("ingest.locate.found",
			"filename", name,
			"size_bytes", len(data),
			"elapsed_ms", elapsedMS(start),
		)
		return &Attachment{Filename: name, MediaType: constants.MediaTypePDF, Data: data}, nil
	}

	log.Info("ingest.locate.none", "elapsed_ms", elapsedMS(start))
	return nil, nil
}

func partHeader(p *mail.Part) message.Header {
	switch h := p.Header.(type) {
	case *mail.InlineHeader:
		return h.Header
	case *mail.AttachmentHeader:
		return h.Header
	}
	return message.Header{}
}

// partFilename reads Content-Disposition filename, falling back to the Content-Type name.
func partFilename(ah mail.AttachmentHeader) string {
	name, err := ah.Filename()
	if err != nil {
		name = ""
	}
	if name == "" {
		if _, params, err := ah.ContentType(); err == nil {
			name = params["name"]
		}
	}
	if strings.Contains(name, "=?") {
		if dec, err := filenameDecoder.DecodeHeader(name); err == nil {
			name = dec
		}
	}
	return strings.TrimSpace(name)
}
