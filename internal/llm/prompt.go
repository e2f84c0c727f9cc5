package llm

import (
	"encoding/json"
	"strings"

	"github.com/joseph-ayodele/invoice-processor/constants"
)

// BuildPrompt composes the instruction sent with every invoice: the markdown transcript
// request, the six fields, the catalog values phrased as hard constraints, and the reply schema.
func BuildPrompt(accounts, projects []string) string {
	var b strings.Builder
	b.WriteString("Analyze the attached invoice PDF. Do two things:\n")
	b.WriteString("1. Create a clean, well-formatted markdown version of the entire invoice.\n")
	b.WriteString("2. Extract the following fields and return them as a JSON object.\n\n")

	b.WriteString("Fields to extract:\n")
	for _, f := range constants.InvoiceFieldNames {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}

	b.WriteString("\nFor 'account' and 'project' you MUST choose exactly one value from the lists below. ")
	b.WriteString("Do not invent new values and do not change spelling or case.\n")
	b.WriteString("Allowed 'account' values: ")
	b.WriteString(quoteList(accounts))
	b.WriteString("\nAllowed 'project' values: ")
	b.WriteString(quoteList(projects))
	b.WriteString("\n\n")

	b.WriteString("Return ONLY a single JSON object with two keys, \"markdown\" and \"data\". ")
	b.WriteString("Every value in \"data\" is a string. Never output null.\n")
	b.WriteString("Example:\n")
	b.WriteString(exampleReply)
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(mustJSON(BuildEnvelopeJSONSchema(accounts, projects)))
	return b.String()
}

const exampleReply = `{
  "markdown": "# Invoice\n\n**Vendor:** ACME Corp ...",
  "data": {
    "invoice_number": "12345",
    "invoice_date": "2025-07-01",
    "total_amount": "99.99",
    "vendor_name": "ACME Corp",
    "account": "Account B",
    "project": "Project Y"
  }
}`

func quoteList(values []string) string {
	b, _ := json.Marshal(values)
	return string(b)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
