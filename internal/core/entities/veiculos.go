package entities

import "github.com/paulodiramos/tvdefleetonline-sub002/internal/core"

var (
	combustiveis   = []string{"gasolina", "gasoleo", "hibrido", "eletrico", "gpl"}
	veiculoEstados = []string{"disponivel", "atribuido", "manutencao", "inativo"}
)

// Veiculos describes the vehicles table.
func Veiculos() core.EntityDefinition {
	return core.EntityDefinition{
		Tipo:          core.TipoVeiculos,
		Label:         "Veículos",
		Table:         "veiculos",
		KeyField:      "matricula",
		DisplayFields: []string{"marca", "modelo"},
		Fields: []core.FieldSpec{
			{ID: "matricula", Label: "Matrícula", Type: core.FieldText, Default: true, Normalizer: normalizeMatricula},
			{ID: "marca", Label: "Marca", Type: core.FieldText, Default: true},
			{ID: "modelo", Label: "Modelo", Type: core.FieldText, Default: true},
			{ID: "ano", Label: "Ano", Type: core.FieldInt},
			{ID: "cor", Label: "Cor", Type: core.FieldText},
			{ID: "combustivel", Label: "Combustível", Type: core.FieldEnum, EnumValues: combustiveis},
			{ID: "data_matricula", Label: "Data da Matrícula", Type: core.FieldDate},
			{ID: "numero_apolice", Label: "Nº Apólice de Seguro", Type: core.FieldText},
			{ID: "validade_seguro", Label: "Validade do Seguro", Type: core.FieldDate},
			{ID: "validade_inspecao", Label: "Validade da Inspeção", Type: core.FieldDate},
			{ID: "km_atual", Label: "Km Atual", Type: core.FieldInt},
			{ID: "estado", Label: "Estado", Type: core.FieldEnum, EnumValues: veiculoEstados},
		},
	}
}
