package llm

import "github.com/joseph-ayodele/invoice-processor/constants"

// BuildInvoiceJSONSchema returns the JSON-Schema of the "data" object. account and project are
// restricted to the catalog values.
func BuildInvoiceJSONSchema(accounts, projects []string) map[string]any {
	props := map[string]any{
		constants.FieldInvoiceNumber: map[string]any{"type": "string"},
		constants.FieldInvoiceDate:   map[string]any{"type": "string"},
		constants.FieldTotalAmount:   map[string]any{"type": "string"},
		constants.FieldVendorName:    map[string]any{"type": "string"},
		constants.FieldAccount:       map[string]any{"type": "string", "enum": accounts},
		constants.FieldProject:       map[string]any{"type": "string", "enum": projects},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             constants.InvoiceFieldNames,
	}
}

// BuildEnvelopeJSONSchema wraps the data schema with the markdown transcript.
func BuildEnvelopeJSONSchema(accounts, projects []string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"markdown": map[string]any{"type": "string", "minLength": 1},
			"data":     BuildInvoiceJSONSchema(accounts, projects),
		},
		"required": []string{"markdown", "data"},
	}
}
