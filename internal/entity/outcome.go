package entity

import (
	"time"

	"github.com/joseph-ayodele/invoice-processor/constants"
)

// ProcessingOutcome is the per-message result of one pipeline pass.
type ProcessingOutcome struct {
	MessageID      string                 `json:"message_id"`
	Kind           constants.OutcomeKind  `json:"kind"`
	State          constants.MessageState `json:"state"`
	Reason         string                 `json:"reason,omitempty"`
	Document       string                 `json:"document,omitempty"`
	ArchivedTo     string                 `json:"archived_to,omitempty"`
	SchemasWritten []string               `json:"schemas_written,omitempty"`
	Elapsed        time.Duration          `json:"elapsed"`
	Err            error                  `json:"-"`
}

// Processed reports a filed message.
func Processed(messageID, archivedTo string, schemas []string) ProcessingOutcome {
	return ProcessingOutcome{
		MessageID:      messageID,
		Kind:           constants.OutcomeProcessed,
		State:          constants.StateFiled,
		ArchivedTo:     archivedTo,
		SchemasWritten: schemas,
	}
}

// Skipped reports a message that needed no work.
func Skipped(messageID string, state constants.MessageState, reason string) ProcessingOutcome {
	return ProcessingOutcome{
		MessageID: messageID,
		Kind:      constants.OutcomeSkipped,
		State:     state,
		Reason:    reason,
	}
}

// Failed reports a message left for a later run or manual inspection.
func Failed(messageID string, state constants.MessageState, err error) ProcessingOutcome {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return ProcessingOutcome{
		MessageID: messageID,
		Kind:      constants.OutcomeFailed,
		State:     state,
		Reason:    reason,
		Err:       err,
	}
}
