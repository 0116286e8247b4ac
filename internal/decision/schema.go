package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The payload is keyed by base coin. Field names are exact: alternate
// spellings are a source-adapter concern, not tolerated here. Unknown
// extra fields inside a coin object are ignored rather than rejected, so
// one instrument's stray field cannot invalidate the decisions for the
// others; a misspelled stop_loss reads as absent and surfaces through the
// missing-target advisory during extraction.
const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "minProperties": 1,
  "propertyNames": {"pattern": "^[A-Z0-9]{1,12}$"},
  "additionalProperties": {
    "type": "object",
    "required": ["signal"],
    "properties": {
      "signal": {"type": "string"},
      "coin": {"type": "string"},
      "quantity": {"type": ["number", "null"]},
      "profit_target": {"type": ["number", "null"]},
      "stop_loss": {"type": ["number", "null"]},
      "leverage": {"type": ["number", "null"]},
      "risk_usd": {"type": ["number", "null"]},
      "risk_pct": {"type": ["number", "null"]},
      "size_usd": {"type": ["number", "null"]},
      "confidence": {"type": ["number", "null"]},
      "invalidation_condition": {"type": ["string", "null"]},
      "justification": {"type": ["string", "null"]}
    },
    "additionalProperties": true
  }
}`

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("decision-payload.json", strings.NewReader(payloadSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("decision-payload.json")
}()

// CheckPayload validates the raw decision payload against the schema.
// A failing payload is rejected as a whole; per-field range checks happen
// later in ForCoin and only drop the offending field.
func CheckPayload(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decision payload is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("decision payload failed schema validation: %w", err)
	}
	return nil
}
