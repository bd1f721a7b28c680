package core

import (
	"context"
	"strings"
	"testing"
)

// testDrivers is a reduced drivers definition for package tests.
func testDrivers() EntityDefinition {
	return EntityDefinition{
		Tipo:          TipoMotoristas,
		Label:         "Motoristas",
		Table:         "motoristas",
		KeyField:      "nif",
		DisplayFields: []string{"nome"},
		Fields: []FieldSpec{
			{ID: "nome", Label: "Nome", Type: FieldText, Default: true},
			{ID: "nif", Label: "NIF", Type: FieldText, Default: true, Normalizer: func(s string) string {
				return strings.ReplaceAll(s, " ", "")
			}},
			{ID: "email", Label: "Email", Type: FieldText, Default: true, Normalizer: strings.ToLower},
			{ID: "data_nascimento", Label: "Data de Nascimento", Type: FieldDate},
			{ID: "comissao_percentual", Label: "Comissão (%)", Type: FieldNumeric},
			{ID: "estado", Label: "Estado", Type: FieldEnum, EnumValues: []string{"ativo", "inativo"}},
			{ID: "criado_por", Label: "Criado Por", Type: FieldText, ReadOnly: true},
		},
	}
}

// testVehicles is a reduced vehicles definition for package tests.
func testVehicles() EntityDefinition {
	return EntityDefinition{
		Tipo:          TipoVeiculos,
		Label:         "Veículos",
		Table:         "veiculos",
		KeyField:      "matricula",
		DisplayFields: []string{"marca", "modelo"},
		Fields: []FieldSpec{
			{ID: "matricula", Label: "Matrícula", Type: FieldText, Default: true, Normalizer: strings.ToUpper},
			{ID: "marca", Label: "Marca", Type: FieldText, Default: true},
			{ID: "modelo", Label: "Modelo", Type: FieldText, Default: true},
			{ID: "ano", Label: "Ano", Type: FieldInt},
			{ID: "km_atual", Label: "Km Atual", Type: FieldInt},
			{ID: "eletrico", Label: "Elétrico", Type: FieldBool},
		},
	}
}

// withTestRegistry registers the test definitions for the duration of t.
func withTestRegistry(t *testing.T) {
	t.Helper()
	clearRegistry()
	Register(testDrivers())
	Register(testVehicles())
	t.Cleanup(clearRegistry)
}

// fakeStore is an in-memory currentLoader keyed by business key.
type fakeStore struct {
	records map[string]map[string]any
	calls   [][]string
	err     error
}

func (f *fakeStore) load(ctx context.Context, def EntityDefinition, keys []string) (map[string]map[string]any, error) {
	f.calls = append(f.calls, append([]string(nil), keys...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]map[string]any)
	for _, k := range keys {
		if rec, ok := f.records[k]; ok {
			out[k] = rec
		}
	}
	return out, nil
}

// csvRows decodes semicolon-separated test input.
func csvRows(t *testing.T, lines ...string) []sourceRow {
	t.Helper()
	rows, err := decodeRows("test.csv", []byte(strings.Join(lines, "\n")), ';')
	if err != nil {
		t.Fatalf("decodeRows: %v", err)
	}
	return rows
}
