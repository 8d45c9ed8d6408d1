package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// contractSchema describes the top-level output document. Field values inside
// sections stay loose: the model owns field-level correctness.
const contractSchema = `{
  "type": "object",
  "required": [
    "document_metadata", "extracted_line_items", "financial_summary",
    "notes_and_calculations", "usage_metadata", "overall_assessment"
  ],
  "properties": {
    "document_metadata": {
      "type": "object",
      "properties": {
        "detected_type": {
          "enum": ["OFFICIAL_INVOICE", "STOCK_REGISTER", "LEDGER_PAGE", "INDEX_PAGE", "ROUGH_ESTIMATE"]
        }
      }
    },
    "extracted_line_items": {"type": "array", "items": {"type": "object"}},
    "financial_summary": {"type": "object"},
    "notes_and_calculations": {"type": "array", "items": {"type": "string"}},
    "usage_metadata": {
      "type": "object",
      "required": ["input_tokens", "output_tokens", "note"],
      "properties": {
        "input_tokens": {"type": "integer", "minimum": 0},
        "output_tokens": {"type": "integer", "minimum": 0},
        "note": {"type": "string"}
      }
    },
    "overall_assessment": {"type": "object"}
  }
}`

func compileContractSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("document.json", strings.NewReader(contractSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("document.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateContract checks a marshaled document against the contract schema.
func validateContract(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("document does not match contract: %w", err)
	}
	return nil
}
