package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestSelectFields(t *testing.T) {
	def := testDrivers()

	tests := []struct {
		name    string
		ids     []string
		want    []string
		wantErr error
	}{
		{"catalog order", []string{"email", "nome", "nif"}, []string{"nome", "nif", "email"}, nil},
		{"duplicates collapse", []string{"nif", "nif", " nif "}, []string{"nif"}, nil},
		{"blank ids skipped", []string{"", "nome"}, []string{"nome"}, nil},
		{"unknown field", []string{"nome", "salario"}, nil, ErrUnknownField},
		{"empty", nil, nil, ErrEmptySelection},
		{"only blanks", []string{"", " "}, nil, ErrEmptySelection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := SelectFields(def, tt.ids)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectFields: %v", err)
			}
			var got []string
			for _, f := range fields {
				got = append(got, f.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("fields = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	def := testDrivers()
	fields, err := SelectFields(def, []string{"nome", "nif", "data_nascimento", "comissao_percentual"})
	if err != nil {
		t.Fatalf("SelectFields: %v", err)
	}

	var comissao pgtype.Numeric
	if err := comissao.Scan("12.50"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	data := [][]any{
		{"Ana; Maria", "123456789", time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), comissao},
		{"Rui", "987654321", nil, nil},
	}

	tests := []struct {
		name      string
		delimiter rune
		want      string
	}{
		{
			name:      "semicolon",
			delimiter: ';',
			want: "Nome;NIF;Data de Nascimento;Comissão (%)\n" +
				"\"Ana; Maria\";123456789;1990-05-01;12.5\n" +
				"Rui;987654321;;\n",
		},
		{
			name:      "comma",
			delimiter: ',',
			want: "Nome,NIF,Data de Nascimento,Comissão (%)\n" +
				"Ana; Maria,123456789,1990-05-01,12.5\n" +
				"Rui,987654321,,\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := writeCSV(&buf, fields, tt.delimiter, func(yield func([]any) error) error {
				for _, row := range data {
					if err := yield(row); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("writeCSV: %v", err)
			}
			if n != 2 {
				t.Errorf("rows = %d, want 2", n)
			}
			out := buf.Bytes()
			if !bytes.HasPrefix(out, utf8BOM) {
				t.Fatal("missing UTF-8 BOM")
			}
			if got := string(out[len(utf8BOM):]); got != tt.want {
				t.Errorf("csv =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	fields, _ := SelectFields(testVehicles(), []string{"matricula"})
	var buf bytes.Buffer
	n, err := writeCSV(&buf, fields, ';', func(func([]any) error) error { return nil })
	if err != nil {
		t.Fatalf("writeCSV: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
	if got := strings.TrimPrefix(buf.String(), string(utf8BOM)); got != "Matrícula\n" {
		t.Errorf("csv = %q", got)
	}
}

func TestWriteCSV_SourceError(t *testing.T) {
	fields, _ := SelectFields(testVehicles(), []string{"matricula"})
	boom := errors.New("connection reset")
	_, err := writeCSV(&bytes.Buffer{}, fields, ';', func(func([]any) error) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestValidateExportAll(t *testing.T) {
	withTestRegistry(t)

	tests := []struct {
		name       string
		selections map[string][]string
		wantTipos  []string
		wantErr    error
	}{
		{
			name:       "both entities",
			selections: map[string][]string{TipoMotoristas: {"nome"}, TipoVeiculos: {"matricula"}},
			wantTipos:  []string{TipoMotoristas, TipoVeiculos},
		},
		{
			name:       "one empty selection is skipped",
			selections: map[string][]string{TipoMotoristas: nil, TipoVeiculos: {"matricula", "marca"}},
			wantTipos:  []string{TipoVeiculos},
		},
		{
			name:       "every selection empty",
			selections: map[string][]string{TipoMotoristas: {}, TipoVeiculos: nil},
			wantErr:    ErrEmptySelection,
		},
		{
			name:       "unknown field",
			selections: map[string][]string{TipoVeiculos: {"cilindrada"}},
			wantErr:    ErrUnknownField,
		},
		{
			name:       "unknown entity",
			selections: map[string][]string{"clientes": {"nome"}},
			wantErr:    ErrUnknownEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateExportAll(tt.selections)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateExportAll: %v", err)
			}
			if len(got) != len(tt.wantTipos) {
				t.Fatalf("entities = %d, want %d", len(got), len(tt.wantTipos))
			}
			for _, tipo := range tt.wantTipos {
				if len(got[tipo]) == 0 {
					t.Errorf("missing fields for %s", tipo)
				}
			}
		})
	}
}

func TestExportFileNames(t *testing.T) {
	day := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	if got := ExportFileName(TipoMotoristas, day); got != "motoristas_2024-05-01.csv" {
		t.Errorf("ExportFileName = %s", got)
	}
	if got := ArchiveFileName(day); got != "exportacao_2024-05-01.zip" {
		t.Errorf("ArchiveFileName = %s", got)
	}
}
