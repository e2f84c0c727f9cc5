// Package mailbox fetches unprocessed messages from a mail source and marks them processed.
package mailbox

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Message is one raw email as delivered by a Source.
type Message struct {
	ID         string    // Message-ID header, or a source-specific fallback; for display only
	Key        string    // source handle passed back to MarkProcessed
	Raw        []byte    // full RFC 5322 bytes
	ReceivedAt time.Time // zero when unknown
}

// Source is an inbox of candidate invoice messages.
type Source interface {
	// FetchUnprocessed returns every message not yet marked processed. Any failure here is a
	// transport error and aborts the run.
	FetchUnprocessed(ctx context.Context) ([]Message, error)
	// MarkProcessed removes msg from the unprocessed set.
	MarkProcessed(ctx context.Context, msg Message) error
	Close() error
}

// headerInfo reads the Message-ID and Date headers. Unparseable headers leave the fields empty.
func headerInfo(raw []byte) (id string, date time.Time) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", time.Time{}
	}
	h := mail.Header{Header: e.Header}
	if mid, err := h.MessageID(); err == nil {
		id = strings.TrimSpace(mid)
	}
	if d, err := h.Date(); err == nil {
		date = d
	}
	return id, date
}
