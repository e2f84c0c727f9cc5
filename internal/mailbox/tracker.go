package mailbox

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Tracker remembers which mbox messages were filed so future runs skip them.
type Tracker struct {
	mu        sync.RWMutex
	processed map[string]string
	path      string
	file      *os.File
}

type trackerRecord struct {
	Key       string    `json:"key"`
	MessageID string    `json:"message_id"`
	FiledAt   time.Time `json:"filed_at"`
}

// NewTracker loads <stateDir>/processed.jsonl and opens it for append.
func NewTracker(stateDir string) (*Tracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	t := &Tracker{
		processed: make(map[string]string),
		path:      filepath.Join(stateDir, "processed.jsonl"),
	}
	if err := t.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open state file for append: %w", err)
	}
	t.file = file
	return t, nil
}

func (t *Tracker) load() error {
	file, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var rec trackerRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if rec.Key != "" {
			t.processed[rec.Key] = rec.MessageID
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

// AlreadyProcessed reports whether key was marked in this or an earlier run.
func (t *Tracker) AlreadyProcessed(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.processed[key]
	return ok
}

// Len is the number of processed keys.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.processed)
}

// MarkProcessed appends key to the state file and syncs it before returning.
func (t *Tracker) MarkProcessed(key, messageID string) error {
	if key == "" {
		return errors.New("empty message key")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.processed[key]; exists {
		return nil
	}

	data, err := json.Marshal(trackerRecord{Key: key, MessageID: messageID, FiledAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}
	data = append(data, '\n')
	if _, err := t.file.Write(data); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	t.processed[key] = messageID
	return nil
}

// Close closes the state file.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	if err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	return nil
}
