package constants

// Recognized invoice field names, as they appear in the extraction reply and in
// normalized template column names.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldTotalAmount   = "total_amount"
	FieldVendorName    = "vendor_name"
	FieldAccount       = "account"
	FieldProject       = "project"
)

// InvoiceFieldNames lists the recognized fields in prompt order.
var InvoiceFieldNames = []string{
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldTotalAmount,
	FieldVendorName,
	FieldAccount,
	FieldProject,
}

// Catalog categories.
const (
	CategoryAccounts = "accounts"
	CategoryProjects = "projects"
)

// CatalogCategories lists the categories a field mapping source must define.
var CatalogCategories = []string{CategoryAccounts, CategoryProjects}
