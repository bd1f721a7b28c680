package core

// decode.go reads an uploaded import file into rows.
//
// Accepted inputs:
//   - .xlsx workbooks: first sheet, raw cell values (dates arrive as serials)
//   - delimited text: optional UTF-8 BOM, UTF-8 or Windows-1252, ';' or ','

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var zipMagic = []byte("PK\x03\x04")

// sourceRow is one record of the import file with its 1-based line number.
type sourceRow struct {
	Line  int
	Cells []string
}

// decodeRows dispatches on file type and returns every record.
func decodeRows(fileName string, data []byte, delimiter rune) ([]sourceRow, error) {
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))) == 0 {
		return nil, ErrEmptyFile
	}
	if isWorkbook(fileName, data) {
		return readWorkbook(data)
	}
	return readDelimited(data, delimiter)
}

func isWorkbook(fileName string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return true
	case ".csv", ".txt":
		return false
	default:
		return bytes.HasPrefix(data, zipMagic)
	}
}

func readWorkbook(data []byte) ([]sourceRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	records, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}

	rows := make([]sourceRow, 0, len(records))
	for i, cells := range records {
		rows = append(rows, sourceRow{Line: i + 1, Cells: cells})
	}
	return rows, nil
}

// toUTF8 strips a UTF-8 BOM and re-encodes Windows-1252 input, which is what
// Excel on Windows writes for "CSV (separado por vírgulas)".
func toUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}
	return decoded, nil
}

func readDelimited(data []byte, delimiter rune) ([]sourceRow, error) {
	data, err := toUTF8(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var rows []sourceRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, sourceRow{Line: line, Cells: record})
	}

	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

func isEmptyRow(cells []string) bool {
	for _, v := range cells {
		if CleanCell(v) != "" {
			return false
		}
	}
	return true
}
