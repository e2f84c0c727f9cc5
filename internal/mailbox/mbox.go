package mailbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

// MboxSource reads messages from an mbox file. A message is identified by the SHA-256 of its
// raw bytes; processed keys are kept in a Tracker because the file itself is never modified.
type MboxSource struct {
	path    string
	tracker *Tracker
	logger  *slog.Logger
}

// NewMboxSource opens the processed-state tracker under stateDir.
func NewMboxSource(path, stateDir string, logger *slog.Logger) (*MboxSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tracker, err := NewTracker(stateDir)
	if err != nil {
		return nil, common.NewConfigError("mbox state", err)
	}
	return &MboxSource{path: path, tracker: tracker, logger: logger}, nil
}

// FetchUnprocessed reads the whole mbox and returns messages not yet marked.
func (s *MboxSource) FetchUnprocessed(ctx context.Context) ([]Message, error) {
	start := time.Now()
	log := common.LoggerFromContext(ctx, s.logger)

	file, err := os.Open(s.path)
	if err != nil {
		return nil, common.NewTransportError("open mbox", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	var (
		out     []Message
		total   int
		skipped int
	)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, common.NewTransportError("fetch cancelled", err)
		}
		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, common.NewTransportError(fmt.Sprintf("read mbox message %d", idx), err)
		}
		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, common.NewTransportError(fmt.Sprintf("read mbox message %d body", idx), err)
		}
		total++

		sum := sha256.Sum256(raw)
		key := hex.EncodeToString(sum[:])
		if s.tracker.AlreadyProcessed(key) {
			skipped++
			continue
		}

		id, date := headerInfo(raw)
		if id == "" {
			id = "mbox:" + strconv.Itoa(idx)
		}
		out = append(out, Message{ID: id, Key: key, Raw: raw, ReceivedAt: date})
	}

	log.Info("mailbox.mbox.fetched",
		"path", s.path,
		"total", total,
		"already_processed", skipped,
		"unprocessed", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// MarkProcessed records msg in the state file.
func (s *MboxSource) MarkProcessed(ctx context.Context, msg Message) error {
	if err := s.tracker.MarkProcessed(msg.Key, msg.ID); err != nil {
		return common.NewTransportError("mark processed", err)
	}
	common.LoggerFromContext(ctx, s.logger).Debug("mailbox.mbox.marked", "key", msg.Key)
	return nil
}

// Close closes the state file.
func (s *MboxSource) Close() error {
	return s.tracker.Close()
}
