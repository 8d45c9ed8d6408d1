// Package export writes extracted documents to spreadsheet files.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// Sheet names.
const (
	SheetLineItems = "Line Items"
	SheetSummary   = "Summary"
)

var metadataFields = []string{
	"detected_type", "entity_or_store_name", "document_date", "customer_or_account_name", "folio_or_page_number",
}

var assessmentFields = []string{"overall_confidence_score", "quality_assessment"}

// WriteXLSX writes doc as a workbook: one row per line item, then a key/value summary sheet.
func WriteXLSX(w io.Writer, doc *domain.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetLineItems); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeLineItems(f, doc); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(f, doc); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeLineItems(f *excelize.File, doc *domain.Document) error {
	items, err := doc.LineItems()
	if err != nil {
		return err
	}

	for i, h := range domain.LineItemFields {
		if err := setCell(f, SheetLineItems, i+1, 1, h); err != nil {
			return err
		}
	}
	for r, item := range items {
		for c, field := range domain.LineItemFields {
			if err := setCell(f, SheetLineItems, c+1, r+2, cellValue(item[field])); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(SheetLineItems, "A", "B", 12)
	_ = f.SetColWidth(SheetLineItems, "C", "D", 40)
	_ = f.SetColWidth(SheetLineItems, "E", "J", 16)
	return nil
}

func writeSummary(f *excelize.File, doc *domain.Document) error {
	var rows [][2]any

	section := func(title string, raw json.RawMessage, fields []string) {
		var m map[string]json.RawMessage
		_ = json.Unmarshal(raw, &m)
		rows = append(rows, [2]any{title, ""})
		for _, k := range fields {
			rows = append(rows, [2]any{k, cellValue(m[k])})
		}
	}

	section(domain.KeyDocumentMetadata, doc.DocumentMetadata, metadataFields)
	section(domain.KeyFinancialSummary, doc.FinancialSummary, domain.FinancialSummaryFields)
	section(domain.KeyOverallAssessment, doc.OverallAssessment, assessmentFields)

	rows = append(rows,
		[2]any{domain.KeyUsageMetadata, ""},
		[2]any{"input_tokens", doc.UsageMetadata.InputTokens},
		[2]any{"output_tokens", doc.UsageMetadata.OutputTokens},
		[2]any{"note", doc.UsageMetadata.Note},
	)

	notes, err := doc.Notes()
	if err != nil {
		return err
	}
	rows = append(rows, [2]any{domain.KeyNotesAndCalculations, ""})
	for i, n := range notes {
		rows = append(rows, [2]any{strconv.Itoa(i + 1), n})
	}

	for i, row := range rows {
		if err := setCell(f, SheetSummary, 1, i+1, row[0]); err != nil {
			return err
		}
		if err := setCell(f, SheetSummary, 2, i+1, row[1]); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 28)
	_ = f.SetColWidth(SheetSummary, "B", "B", 60)
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// cellValue keeps JSON numbers numeric and renders everything else as text.
func cellValue(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')) {
		if v, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
			return v
		}
	}
	return domain.RawText(raw)
}
