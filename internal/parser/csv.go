package parser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// RequiredColumns are the normalized header names an upload must carry.
// The s and r action counters are optional and checked separately.
var RequiredColumns = []string{
	"dependencia",
	"tramite",
	"nivel_digitalizacion",
	"fase1_tramites_intervenidos",
	"fase2_modelado",
	"fase3_reingenieria",
	"fase4_digitalizacion",
	"fase5_implementacion",
	"fase6_liberacion",
}

// Record is one data row keyed by normalized header. Row is the 1-based file
// row number; the header occupies row 1, so the first data row is 2.
type Record struct {
	Row    int
	Fields map[string]string
}

// Document is a fully decoded CSV upload.
type Document struct {
	Headers []string
	Records []Record
}

// NormalizeHeader canonicalizes a raw column name: trims whitespace, strips
// embedded quote and newline characters and lowercases. Total, never fails;
// unrecognized headers simply never match a required field downstream.
func NormalizeHeader(header string) string {
	replacer := strings.NewReplacer(`"`, "", "\r", "", "\n", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(header)))
}

// MissingColumns reports which required columns are absent from a normalized
// header set, in RequiredColumns order.
func MissingColumns(headers []string) []string {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}

	var missing []string
	for _, req := range RequiredColumns {
		if _, ok := present[req]; !ok {
			missing = append(missing, req)
		}
	}
	return missing
}

// ParseFile decodes a CSV upload from disk.
func ParseFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes a CSV upload. Exports vary between admin machines, so the
// reader is deliberately tolerant: UTF-8 BOM stripped, comma or tab delimiter
// sniffed from the header line, relaxed quoting, variable field counts.
// A structural failure the relaxed reader still cannot recover from aborts
// the whole decode.
func Parse(r io.Reader) (*Document, error) {
	br := bufio.NewReader(r)
	stripBOM(br)

	reader := csv.NewReader(br)
	reader.Comma = detectDelimiter(br)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rawHeader, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("el archivo está vacío o no tiene encabezado")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	headers := make([]string, len(rawHeader))
	for i, h := range rawHeader {
		headers[i] = NormalizeHeader(h)
	}

	doc := &Document{Headers: headers}
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if isEmptyRecord(record) {
			continue
		}

		row++
		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				fields[h] = strings.TrimSpace(record[i])
			}
		}
		doc.Records = append(doc.Records, Record{Row: row, Fields: fields})
	}

	return doc, nil
}

func stripBOM(br *bufio.Reader) {
	b, err := br.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
}

// detectDelimiter sniffs the header line for tabs vs commas. Comma wins ties
// so a plain single-column file still parses.
func detectDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}

	if strings.Count(line, "\t") > strings.Count(line, ",") {
		return '\t'
	}
	return ','
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
