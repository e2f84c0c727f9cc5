package llm

import (
	"context"

	"github.com/joseph-ayodele/invoice-processor/internal/entity"
)

// Capability is a document-understanding model: given a PDF and a prompt it returns the
// model's text reply.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, doc entity.Document, prompt string) (string, error)
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, doc entity.Document) (entity.ExtractionResult, error)
}

// Catalog is the allowed-value source the prompt and the reply schema are built from.
type Catalog interface {
	entity.Vocabulary
	Accounts() []string
	Projects() []string
}

// Observer receives the outcome of each capability call.
type Observer interface {
	ObserveExtraction(provider, status string, seconds float64)
}
