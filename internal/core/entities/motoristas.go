package entities

import "github.com/paulodiramos/tvdefleetonline-sub002/internal/core"

var motoristaEstados = []string{"ativo", "inativo", "suspenso"}

// Motoristas describes the drivers table.
func Motoristas() core.EntityDefinition {
	return core.EntityDefinition{
		Tipo:          core.TipoMotoristas,
		Label:         "Motoristas",
		Table:         "motoristas",
		KeyField:      "nif",
		DisplayFields: []string{"nome"},
		Fields: []core.FieldSpec{
			{ID: "nome", Label: "Nome", Type: core.FieldText, Default: true},
			{ID: "nif", Label: "NIF", Type: core.FieldText, Default: true, Normalizer: normalizeNIF},
			{ID: "email", Label: "Email", Type: core.FieldText, Default: true, Normalizer: normalizeEmail},
			{ID: "telefone", Label: "Telefone", Type: core.FieldText, Normalizer: normalizePhone},
			{ID: "data_nascimento", Label: "Data de Nascimento", Type: core.FieldDate},
			{ID: "morada", Label: "Morada", Type: core.FieldText},
			{ID: "codigo_postal", Label: "Código Postal", Type: core.FieldText},
			{ID: "localidade", Label: "Localidade", Type: core.FieldText},
			{ID: "numero_carta_conducao", Label: "Nº Carta de Condução", Type: core.FieldText},
			{ID: "validade_carta_conducao", Label: "Validade Carta de Condução", Type: core.FieldDate},
			{ID: "numero_licenca_tvde", Label: "Nº Licença TVDE", Type: core.FieldText},
			{ID: "validade_licenca_tvde", Label: "Validade Licença TVDE", Type: core.FieldDate},
			{ID: "iban", Label: "IBAN", Type: core.FieldText, Normalizer: normalizeIBAN},
			{ID: "comissao_percentual", Label: "Comissão (%)", Type: core.FieldNumeric},
			{ID: "estado", Label: "Estado", Type: core.FieldEnum, EnumValues: motoristaEstados},
		},
	}
}
