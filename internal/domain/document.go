package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// DetectedType classifies the photographed document.
type DetectedType string

// Document types the model may report.
const (
	TypeOfficialInvoice DetectedType = "OFFICIAL_INVOICE"
	TypeStockRegister   DetectedType = "STOCK_REGISTER"
	TypeLedgerPage      DetectedType = "LEDGER_PAGE"
	TypeIndexPage       DetectedType = "INDEX_PAGE"
	TypeRoughEstimate   DetectedType = "ROUGH_ESTIMATE"
)

// Valid reports whether t is one of the known document types.
func (t DetectedType) Valid() bool {
	switch t {
	case TypeOfficialInvoice, TypeStockRegister, TypeLedgerPage, TypeIndexPage, TypeRoughEstimate:
		return true
	}
	return false
}

// Top-level keys of the output document.
const (
	KeyDocumentMetadata     = "document_metadata"
	KeyExtractedLineItems   = "extracted_line_items"
	KeyFinancialSummary     = "financial_summary"
	KeyNotesAndCalculations = "notes_and_calculations"
	KeyUsageMetadata        = "usage_metadata"
	KeyOverallAssessment    = "overall_assessment"
)

// LineItemFields lists the per-row fields of extracted_line_items in contract order.
var LineItemFields = []string{
	"row_id", "date", "description_raw", "description_english", "quantity_or_model",
	"rate_or_unit_price", "debit_or_receipt_amount", "credit_or_issue_amount", "balance", "confidence_score",
}

// FinancialSummaryFields lists the fields of financial_summary in contract order.
var FinancialSummaryFields = []string{"sub_total", "grand_total", "advance_paid", "balance_due"}

const snippetRunes = 200

// UsageMetadata is the usage block the pipeline writes into every document.
type UsageMetadata struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Note         string `json:"note"`
}

// UsageMetadataFrom converts a usage record into its document form.
func UsageMetadataFrom(u Usage) UsageMetadata {
	return UsageMetadata{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens, Note: u.Note}
}

// Document is the extraction result. Model-produced sections are kept as raw JSON
// so numbers and strings keep the exact formatting the model emitted.
type Document struct {
	DocumentMetadata     json.RawMessage
	ExtractedLineItems   json.RawMessage
	FinancialSummary     json.RawMessage
	NotesAndCalculations json.RawMessage
	UsageMetadata        UsageMetadata
	OverallAssessment    json.RawMessage

	// Extra holds top-level keys outside the contract, passed through untouched.
	Extra map[string]json.RawMessage
}

// ParseDocument parses model output into a Document.
// Missing or null contract sections are filled with empty values; any usage block
// emitted by the model is dropped, since the pipeline owns usage_metadata.
func ParseDocument(text string) (*Document, error) {
	payload := stripCodeFence(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, &JSONParseError{Snippet: Snippet(text), Msg: "model output is not valid JSON", Err: err}
	}
	if fields == nil {
		return nil, &JSONParseError{Snippet: Snippet(text), Msg: "model output is not a JSON object"}
	}

	take := func(key, empty string) json.RawMessage {
		raw, ok := fields[key]
		delete(fields, key)
		if !ok || isNull(raw) {
			return json.RawMessage(empty)
		}
		return raw
	}

	doc := &Document{
		DocumentMetadata:     take(KeyDocumentMetadata, "{}"),
		ExtractedLineItems:   take(KeyExtractedLineItems, "[]"),
		FinancialSummary:     take(KeyFinancialSummary, "{}"),
		NotesAndCalculations: take(KeyNotesAndCalculations, "[]"),
		OverallAssessment:    take(KeyOverallAssessment, "{}"),
	}
	delete(fields, KeyUsageMetadata)
	if len(fields) > 0 {
		doc.Extra = fields
	}
	return doc, nil
}

// MarshalJSON writes the contract keys in their documented order, then any extra keys sorted.
func (d *Document) MarshalJSON() ([]byte, error) {
	usage, err := json.Marshal(d.UsageMetadata)
	if err != nil {
		return nil, fmt.Errorf("marshal usage metadata: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, value json.RawMessage, empty string) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		if len(value) == 0 {
			buf.WriteString(empty)
			return
		}
		buf.Write(value)
	}

	write(KeyDocumentMetadata, d.DocumentMetadata, "{}")
	write(KeyExtractedLineItems, d.ExtractedLineItems, "[]")
	write(KeyFinancialSummary, d.FinancialSummary, "{}")
	write(KeyNotesAndCalculations, d.NotesAndCalculations, "[]")
	write(KeyUsageMetadata, usage, "{}")
	write(KeyOverallAssessment, d.OverallAssessment, "{}")

	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, d.Extra[k], "null")
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DetectedType reads document_metadata.detected_type. Unknown or missing values return "".
func (d *Document) DetectedType() DetectedType {
	var meta struct {
		DetectedType string `json:"detected_type"`
	}
	if err := json.Unmarshal(d.DocumentMetadata, &meta); err != nil {
		return ""
	}
	t := DetectedType(meta.DetectedType)
	if !t.Valid() {
		return ""
	}
	return t
}

// LineItems decodes extracted_line_items into per-row field maps.
func (d *Document) LineItems() ([]map[string]json.RawMessage, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(d.ExtractedLineItems, &items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	return items, nil
}

// Summary decodes financial_summary into a field map.
func (d *Document) Summary() (map[string]json.RawMessage, error) {
	var summary map[string]json.RawMessage
	if err := json.Unmarshal(d.FinancialSummary, &summary); err != nil {
		return nil, fmt.Errorf("decode financial summary: %w", err)
	}
	return summary, nil
}

// Notes decodes notes_and_calculations. Non-string entries are rendered as raw JSON.
func (d *Document) Notes() ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(d.NotesAndCalculations, &raw); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	notes := make([]string, 0, len(raw))
	for _, r := range raw {
		notes = append(notes, RawText(r))
	}
	return notes, nil
}

// RawText renders a JSON value as display text: strings unquoted, null empty,
// anything else exactly as emitted.
func RawText(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// Snippet returns at most the first 200 characters of text for diagnostics.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetRunes]) + "..."
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// stripCodeFence unwraps a ```json ... ``` block. Text without a leading fence is returned as is.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSpace(trimmed)
	return strings.TrimSuffix(trimmed, "```")
}
