package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-processor/constants"
)

// StripCodeFences removes markdown code fences and any prose around the outermost JSON object.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// Reply is a decoded model reply with data values reduced to their literal text.
type Reply struct {
	Markdown string
	Data     map[string]string
	Dropped  []string
}

// ParseReply decodes the cleaned reply text. Numeric data values keep their literal text.
// A null or non-scalar value for a field fails. Keys outside the six invoice fields are
// dropped when lenient is set and rejected otherwise.
func ParseReply(text string, lenient bool) (Reply, error) {
	var out Reply

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var envelope map[string]json.RawMessage
	if err := dec.Decode(&envelope); err != nil {
		return out, fmt.Errorf("reply is not a JSON object: %w", err)
	}
	if dec.More() {
		return out, errors.New("reply has trailing content after the JSON object")
	}

	rawMD, ok := envelope["markdown"]
	if !ok {
		return out, errors.New(`reply is missing "markdown"`)
	}
	if err := json.Unmarshal(rawMD, &out.Markdown); err != nil {
		return out, fmt.Errorf(`"markdown" is not a string: %w`, err)
	}
	if strings.TrimSpace(out.Markdown) == "" {
		return out, errors.New(`"markdown" is empty`)
	}

	rawData, ok := envelope["data"]
	if !ok {
		return out, errors.New(`reply is missing "data"`)
	}
	var data map[string]any
	dataDec := json.NewDecoder(bytes.NewReader(rawData))
	dataDec.UseNumber()
	if err := dataDec.Decode(&data); err != nil || data == nil {
		return out, fmt.Errorf(`"data" is not a JSON object: %v`, err)
	}

	out.Data = make(map[string]string, len(constants.InvoiceFieldNames))
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if !slices.Contains(constants.InvoiceFieldNames, k) {
			if !lenient {
				return out, fmt.Errorf("unexpected field %q in data", k)
			}
			out.Dropped = append(out.Dropped, k)
			continue
		}
		switch v := data[k].(type) {
		case string:
			out.Data[k] = strings.TrimSpace(v)
		case json.Number:
			out.Data[k] = v.String()
		case nil:
			return out, fmt.Errorf("field %q is null", k)
		default:
			return out, fmt.Errorf("field %q has unsupported type %T", k, v)
		}
	}
	return out, nil
}

// envelopeValue renders the reply in the shape the envelope schema validates.
func (r Reply) envelopeValue() map[string]any {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return map[string]any{"markdown": r.Markdown, "data": data}
}
