package entity

import (
	"fmt"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-processor/constants"
)

// Vocabulary is the read-only view of the field mapping catalog the record is checked against.
type Vocabulary interface {
	Contains(category, value string) bool
}

// InvoiceFields is the validated structured record extracted from one invoice.
// Values are kept as the literal text the extraction produced.
type InvoiceFields struct {
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`
	TotalAmount   string `json:"total_amount"`
	VendorName    string `json:"vendor_name"`
	Account       string `json:"account"`
	Project       string `json:"project"`
}

// InvoiceFieldsFromMap builds the record from a decoded field mapping. Every recognized
// field must be present; unknown keys are reported so the caller can decide on them.
func InvoiceFieldsFromMap(m map[string]string) (InvoiceFields, []string, error) {
	var missing []string
	for _, name := range constants.InvoiceFieldNames {
		if _, ok := m[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return InvoiceFields{}, nil, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	var unknown []string
	for k := range m {
		if !isRecognized(k) {
			unknown = append(unknown, k)
		}
	}

	return InvoiceFields{
		InvoiceNumber: m[constants.FieldInvoiceNumber],
		InvoiceDate:   m[constants.FieldInvoiceDate],
		TotalAmount:   m[constants.FieldTotalAmount],
		VendorName:    m[constants.FieldVendorName],
		Account:       m[constants.FieldAccount],
		Project:       m[constants.FieldProject],
	}, unknown, nil
}

// Validate enforces catalog membership of account and project.
func (f InvoiceFields) Validate(v Vocabulary) error {
	if !v.Contains(constants.CategoryAccounts, f.Account) {
		return fmt.Errorf("account %q is not in the allowed accounts", f.Account)
	}
	if !v.Contains(constants.CategoryProjects, f.Project) {
		return fmt.Errorf("project %q is not in the allowed projects", f.Project)
	}
	return nil
}

// Lookup returns the value of a recognized field by its normalized name.
func (f InvoiceFields) Lookup(key string) (string, bool) {
	switch key {
	case constants.FieldInvoiceNumber:
		return f.InvoiceNumber, true
	case constants.FieldInvoiceDate:
		return f.InvoiceDate, true
	case constants.FieldTotalAmount:
		return f.TotalAmount, true
	case constants.FieldVendorName:
		return f.VendorName, true
	case constants.FieldAccount:
		return f.Account, true
	case constants.FieldProject:
		return f.Project, true
	}
	return "", false
}

// Map returns the record as field name -> value.
func (f InvoiceFields) Map() map[string]string {
	out := make(map[string]string, len(constants.InvoiceFieldNames))
	for _, name := range constants.InvoiceFieldNames {
		out[name], _ = f.Lookup(name)
	}
	return out
}

func isRecognized(key string) bool {
	return slices.Contains(constants.InvoiceFieldNames, key)
}

// ExtractionResult is the validated output of one extraction call.
type ExtractionResult struct {
	Markdown string        `json:"markdown"`
	Fields   InvoiceFields `json:"data"`
}
