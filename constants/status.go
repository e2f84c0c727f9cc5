package constants

// MessageState is a node of the per-message processing state machine.
type MessageState string

const (
	StateFetched          MessageState = "FETCHED"
	StateAttachmentFound  MessageState = "ATTACHMENT_FOUND"
	StateNoAttachment     MessageState = "NO_ATTACHMENT"     // terminal, message untouched
	StateAlreadyFiled     MessageState = "ALREADY_FILED"     // terminal, archive already holds the document
	StateStageFailed      MessageState = "STAGE_FAILED"      // terminal
	StateExtracted        MessageState = "EXTRACTED"
	StateExtractionFailed MessageState = "EXTRACTION_FAILED" // terminal, document retained in staging
	StateProjected        MessageState = "PROJECTED"
	StateOutputFailed     MessageState = "OUTPUT_FAILED"     // terminal, at least one output missing
	StateArchiveFailed    MessageState = "ARCHIVE_FAILED"    // terminal
	StateFiled            MessageState = "FILED"             // terminal, success
	StateFiledNotMarked   MessageState = "FILED_NOT_MARKED"  // terminal, archived but mailbox not updated
)

// OutcomeKind is the coarse result reported for each message.
type OutcomeKind string

const (
	OutcomeProcessed OutcomeKind = "PROCESSED"
	OutcomeSkipped   OutcomeKind = "SKIPPED"
	OutcomeFailed    OutcomeKind = "FAILED"
)
