package llm

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
)

// MaxDocumentBytes bounds the PDF size sent inline to a capability.
const MaxDocumentBytes = 20 << 20

// ReadDocument loads the staged PDF, refusing files larger than MaxDocumentBytes.
func ReadDocument(doc entity.Document) ([]byte, error) {
	st, err := os.Stat(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	if st.Size() > MaxDocumentBytes {
		return nil, fmt.Errorf("document is %d bytes, limit is %d", st.Size(), MaxDocumentBytes)
	}
	b, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return b, nil
}

// Base64Document returns the document bytes base64 encoded.
func Base64Document(doc entity.Document) (string, error) {
	b, err := ReadDocument(doc)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DocumentDataURL returns the document as a data: URL.
func DocumentDataURL(doc entity.Document) (string, error) {
	data, err := Base64Document(doc)
	if err != nil {
		return "", err
	}
	return "data:" + constants.MediaTypePDF + ";base64," + data, nil
}
