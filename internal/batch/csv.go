package batch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// utf8BOM is tolerated (and stripped) on input; spreadsheet exports
// commonly prepend it.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadBatch parses a CSV document into a Batch. The first record is the
// header; ragged data rows are padded or truncated to the header width
// so every Row carries the full column set.
func ReadBatch(r io.Reader) (Batch, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, fmt.Errorf("read csv input: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return Batch{}, ErrEmptyBatch
	}
	if err != nil {
		return Batch{}, fmt.Errorf("read csv header: %w", err)
	}

	b := Batch{Columns: append([]string(nil), header...)}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Batch{}, fmt.Errorf("read csv row %d: %w", len(b.Rows)+2, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}

// Assemble serializes the filled slots into the output CSV: the
// original columns in declaration order with the email column appended
// when new, one data row per ordinal, in ordinal order.
func Assemble(b Batch, outcomes []RowOutcome) (string, error) {
	columns := b.OutputColumns()

	var sb strings.Builder
	writer := csv.NewWriter(&sb)
	if err := writer.Write(columns); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, outcome := range outcomes {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = outcome.Row[col]
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write csv row %d: %w", outcome.Ordinal, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush csv output: %w", err)
	}
	return sb.String(), nil
}

// WithBOM prefixes the document with a UTF-8 byte-order mark so
// spreadsheet applications open it with the right encoding.
func WithBOM(doc string) []byte {
	out := make([]byte, 0, len(utf8BOM)+len(doc))
	out = append(out, utf8BOM...)
	return append(out, doc...)
}
