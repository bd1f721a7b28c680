package core

// error_messages.go maps technical errors to Portuguese messages with a
// support code. Partners quote the code; support looks it up here.
//
// # Database (DB001-DB099)
//
//	DB001 - duplicate key / unique constraint
//	DB002 - check constraint or value too long for the column
//	DB003 - connection refused or reset
//	DB004 - timeout
//	DB005 - deadlock
//	DB006 - record disappeared between preview and commit
//
// # Validation (VAL001-VAL099)
//
//	VAL001 - invalid date
//	VAL002 - invalid number
//	VAL003 - invalid enum value
//	VAL004 - invalid boolean
//	VAL005 - empty field selection
//	VAL006 - unknown field id
//	VAL007 - delimiter other than ';' or ','
//	VAL008 - malformed column mapping
//
// # File (FILE001-FILE099)
//
//	FILE001 - file too large
//	FILE002 - unreadable CSV
//	FILE003 - encoding error
//	FILE004 - no file in the request
//	FILE005 - empty file
//	FILE006 - business key column missing from the header
//	FILE007 - unreadable XLSX
//
// # Import (IMP001-IMP099)
//
//	IMP001 - unknown entity type
//	IMP002 - too many imports in progress
//	IMP003 - request cancelled
//	IMP004 - request timed out
//	IMP005 - file changed between preview and confirm
//
// # Rate limiting
//
//	RATE001 - too many requests
//
// # Default
//
//	ERR000 - no pattern matched; check the server log for the request id
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Database
	{"duplicate key", UserMessage{"Já existe um registo com este valor", "Verifique valores repetidos no ficheiro", "DB001"}},
	{"violates unique", UserMessage{"Já existe um registo com este valor", "Verifique valores repetidos no ficheiro", "DB001"}},
	{"violates check constraint", UserMessage{"Valor recusado pela base de dados", "Corrija o valor indicado e tente novamente", "DB002"}},
	{"value too long", UserMessage{"Valor demasiado longo", "Encurte o valor indicado e tente novamente", "DB002"}},
	{"connection refused", UserMessage{"Base de dados indisponível", "Tente novamente dentro de momentos", "DB003"}},
	{"connection reset", UserMessage{"Ligação à base de dados interrompida", "Tente novamente", "DB003"}},
	{"deadlock", UserMessage{"A base de dados estava ocupada", "Tente novamente", "DB005"}},
	{"record not found", UserMessage{"O registo deixou de existir", "Gere uma nova pré-visualização", "DB006"}},

	// Validation
	{"invalid date", UserMessage{"Data inválida", "Use AAAA-MM-DD ou DD/MM/AAAA", "VAL001"}},
	{"invalid number", UserMessage{"Número inválido", "Use apenas algarismos e um separador decimal", "VAL002"}},
	{"invalid enum", UserMessage{"Valor não permitido", "Consulte os valores permitidos para o campo", "VAL003"}},
	{"invalid boolean", UserMessage{"Valor Sim/Não inválido", "Use Sim ou Não", "VAL004"}},
	{"empty field selection", UserMessage{"Nenhum campo selecionado", "Selecione pelo menos um campo", "VAL005"}},
	{"unknown field", UserMessage{"Campo desconhecido", "Atualize a página para obter a lista de campos", "VAL006"}},
	{"invalid delimiter", UserMessage{"Delimitador inválido", "Use ponto e vírgula (;) ou vírgula (,)", "VAL007"}},
	{"invalid mapping", UserMessage{"Mapeamento de colunas inválido", "Reveja o mapeamento guardado", "VAL008"}},

	// File
	{"request body too large", UserMessage{"Ficheiro demasiado grande", "Divida o ficheiro em partes mais pequenas", "FILE001"}},
	{"file too large", UserMessage{"Ficheiro demasiado grande", "Divida o ficheiro em partes mais pequenas", "FILE001"}},
	{"invalid csv", UserMessage{"Ficheiro CSV inválido", "Confirme o delimitador escolhido e o formato do ficheiro", "FILE002"}},
	{"encoding error", UserMessage{"Codificação do ficheiro inválida", "Guarde o ficheiro em UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"Nenhum ficheiro enviado", "Selecione um ficheiro CSV ou XLSX", "FILE004"}},
	{"empty file", UserMessage{"O ficheiro está vazio", "Envie um ficheiro com cabeçalho e linhas", "FILE005"}},
	{"missing key column", UserMessage{"Falta a coluna identificadora", "Inclua a coluna NIF (motoristas) ou Matrícula (veículos)", "FILE006"}},
	{"invalid xlsx", UserMessage{"Ficheiro Excel inválido", "Guarde o ficheiro como .xlsx ou CSV", "FILE007"}},

	// Import
	{"unknown entity type", UserMessage{"Tipo de dados desconhecido", "Use motoristas ou veiculos", "IMP001"}},
	{"too many imports", UserMessage{"Sistema ocupado com outras importações", "Aguarde um momento e tente novamente", "IMP002"}},
	{"context canceled", UserMessage{"Pedido cancelado", "Tente novamente", "IMP003"}},
	{"deadline exceeded", UserMessage{"O pedido demorou demasiado", "Tente com um ficheiro mais pequeno", "IMP004"}},
	{"file changed since preview", UserMessage{"O ficheiro mudou desde a pré-visualização", "Pré-visualize novamente antes de confirmar", "IMP005"}},
	{"timeout", UserMessage{"Tempo limite excedido", "Tente novamente mais tarde", "DB004"}},

	// Rate limiting
	{"rate limit", UserMessage{"Demasiados pedidos", "Aguarde um momento antes de tentar novamente", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "Ocorreu um erro inesperado",
	Action:  "Tente novamente ou contacte o suporte",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. Unmatched
// errors get the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Mensagem (Código: XXX). Ação".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Código: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a specific pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err; nil stays nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
