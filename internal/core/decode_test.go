package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDecodeRows_Delimited(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		delimiter rune
		want      [][]string
		wantLines []int
	}{
		{
			name:      "semicolon",
			data:      []byte("NIF;Nome\n123;Ana\n"),
			delimiter: ';',
			want:      [][]string{{"NIF", "Nome"}, {"123", "Ana"}},
			wantLines: []int{1, 2},
		},
		{
			name:      "comma",
			data:      []byte("NIF,Nome\n123,Ana\n"),
			delimiter: ',',
			want:      [][]string{{"NIF", "Nome"}, {"123", "Ana"}},
			wantLines: []int{1, 2},
		},
		{
			name:      "bom stripped",
			data:      append(append([]byte{}, utf8BOM...), []byte("NIF;Nome\n1;Ana")...),
			delimiter: ';',
			want:      [][]string{{"NIF", "Nome"}, {"1", "Ana"}},
			wantLines: []int{1, 2},
		},
		{
			name:      "windows-1252 decoded",
			data:      []byte("NIF;Nome\n1;Jo\xe3o\n"),
			delimiter: ';',
			want:      [][]string{{"NIF", "Nome"}, {"1", "João"}},
			wantLines: []int{1, 2},
		},
		{
			name:      "crlf and ragged rows",
			data:      []byte("NIF;Nome;Email\r\n1;Ana\r\n2;Rui;rui@x.pt\r\n"),
			delimiter: ';',
			want:      [][]string{{"NIF", "Nome", "Email"}, {"1", "Ana"}, {"2", "Rui", "rui@x.pt"}},
			wantLines: []int{1, 2, 3},
		},
		{
			name:      "quoted delimiter and newline",
			data:      []byte("NIF;Morada\n1;\"Rua A; 2\nLisboa\"\n2;Porto\n"),
			delimiter: ';',
			want:      [][]string{{"NIF", "Morada"}, {"1", "Rua A; 2\nLisboa"}, {"2", "Porto"}},
			wantLines: []int{1, 2, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := decodeRows("dados.csv", tt.data, tt.delimiter)
			if err != nil {
				t.Fatalf("decodeRows: %v", err)
			}
			if len(rows) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(rows), len(tt.want))
			}
			for i, r := range rows {
				if strings.Join(r.Cells, "|") != strings.Join(tt.want[i], "|") {
					t.Errorf("row %d = %q, want %q", i, r.Cells, tt.want[i])
				}
				if r.Line != tt.wantLines[i] {
					t.Errorf("row %d line = %d, want %d", i, r.Line, tt.wantLines[i])
				}
			}
		})
	}
}

func TestDecodeRows_Empty(t *testing.T) {
	inputs := map[string][]byte{
		"no bytes":    nil,
		"only bom":    utf8BOM,
		"only spaces": []byte("  \n\n "),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeRows("vazio.csv", data, ';'); !errors.Is(err, ErrEmptyFile) {
				t.Errorf("decodeRows error = %v, want ErrEmptyFile", err)
			}
		})
	}
}

func TestDecodeRows_Workbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	cells := map[string]any{
		"A1": "Matrícula", "B1": "Marca", "C1": "Km Atual",
		"A2": "AA-00-BB", "B2": "Toyota", "C2": 12000,
	}
	for ref, v := range cells {
		if err := f.SetCellValue(sheet, ref, v); err != nil {
			t.Fatalf("SetCellValue %s: %v", ref, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	// The extension decides first; a zip signature decides otherwise.
	for _, name := range []string{"frota.xlsx", "upload"} {
		t.Run(name, func(t *testing.T) {
			rows, err := decodeRows(name, buf.Bytes(), ';')
			if err != nil {
				t.Fatalf("decodeRows: %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("got %d rows, want 2", len(rows))
			}
			if got := strings.Join(rows[0].Cells, "|"); got != "Matrícula|Marca|Km Atual" {
				t.Errorf("header = %q", got)
			}
			if got := strings.Join(rows[1].Cells, "|"); got != "AA-00-BB|Toyota|12000" {
				t.Errorf("row = %q", got)
			}
			if rows[1].Line != 2 {
				t.Errorf("line = %d, want 2", rows[1].Line)
			}
		})
	}
}

func TestDecodeRows_InvalidWorkbook(t *testing.T) {
	_, err := decodeRows("frota.xlsx", []byte("not a workbook"), ';')
	if err == nil || !strings.Contains(err.Error(), "invalid xlsx") {
		t.Fatalf("error = %v, want invalid xlsx", err)
	}
	if code := MapError(err).Code; code != "FILE007" {
		t.Errorf("MapError code = %s, want FILE007", code)
	}
}

func TestIsEmptyRow(t *testing.T) {
	tests := []struct {
		cells []string
		want  bool
	}{
		{nil, true},
		{[]string{"", "  ", `=""`}, true},
		{[]string{"", "x"}, false},
	}
	for _, tt := range tests {
		if got := isEmptyRow(tt.cells); got != tt.want {
			t.Errorf("isEmptyRow(%q) = %v, want %v", tt.cells, got, tt.want)
		}
	}
}
