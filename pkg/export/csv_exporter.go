package export

import (
	"bytes"
	"fmt"
	"strings"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// DefaultDelimiter separates CSV fields. Semicolons open cleanly in
// spreadsheet apps configured for Spanish locales.
const DefaultDelimiter = ';'

// CSVExporter renders Dataset records into CSV bytes. Every field is wrapped
// in double quotes, embedded quotes are doubled.
type CSVExporter struct {
	delimiter rune
}

// NewCSVExporter builds a CSV exporter using DefaultDelimiter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{delimiter: DefaultDelimiter}
}

// NewCSVExporterWithDelimiter builds a CSV exporter with a custom delimiter.
func NewCSVExporterWithDelimiter(delimiter rune) *CSVExporter {
	return &CSVExporter{delimiter: delimiter}
}

// Render produces CSV encoded bytes for the dataset, one header line followed
// by one line per row.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	delimiter := e.delimiter
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}

	buf := &bytes.Buffer{}
	writeRecord(buf, data.Headers, delimiter)
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		writeRecord(buf, record, delimiter)
	}
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, fields []string, delimiter rune) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteRune(delimiter)
		}
		buf.WriteString(Quote(field))
	}
	buf.WriteByte('\n')
}

// Quote wraps a value in double quotes, doubling embedded quotes. Line breaks
// are flattened so each record stays on one line.
func Quote(value string) string {
	value = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value)
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
