package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Entity types.
const (
	TipoMotoristas = "motoristas"
	TipoVeiculos   = "veiculos"
)

var (
	ErrUnknownEntity    = errors.New("unknown entity type")
	ErrUnknownField     = errors.New("unknown field")
	ErrEmptySelection   = errors.New("empty field selection")
	ErrInvalidDelimiter = errors.New("invalid delimiter")
	ErrMissingKeyColumn = errors.New("missing key column")
	ErrEmptyFile        = errors.New("empty file")
	ErrNoFile           = errors.New("no file provided")
	ErrFileChanged      = errors.New("file changed since preview")
)

// FieldType is the storage type of an entity field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInt
	FieldBool
)

// FieldSpec describes one exportable/importable field of an entity.
type FieldSpec struct {
	ID         string              // Stable identifier used in requests: "data_nascimento"
	Label      string              // Human label used as CSV header: "Data de Nascimento"
	Column     string              // Database column; defaults to ID
	Type       FieldType           // Storage type
	Default    bool                // Pre-selected in a fresh selection
	EnumValues []string            // Allowed values for FieldEnum
	Normalizer func(string) string // Optional clean-up applied before parsing
	ReadOnly   bool                // Exported but never updated by an import
}

// DBColumn returns the column backing the field.
func (f FieldSpec) DBColumn() string {
	if f.Column != "" {
		return f.Column
	}
	return f.ID
}

// EntityDefinition contains everything needed to export and reconcile one
// entity type.
type EntityDefinition struct {
	Tipo     string // "motoristas"
	Label    string // "Motoristas"
	Table    string // Database table
	KeyField string // Field ID of the business key

	// DisplayFields are joined with a space to describe a record in a
	// preview: nome for drivers, marca + modelo for vehicles.
	DisplayFields []string

	Fields []FieldSpec
}

// Field returns the field with the given id.
func (d EntityDefinition) Field(id string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Key returns the business key spec.
func (d EntityDefinition) Key() FieldSpec {
	f, _ := d.Field(d.KeyField)
	return f
}

// FieldDescriptor is the catalog entry sent to clients.
type FieldDescriptor struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}

// Catalog maps entity type to its ordered field descriptors.
type Catalog map[string][]FieldDescriptor

// FieldChange is one differing field of a record, rendered as display strings.
type FieldChange struct {
	Campo      string `json:"campo"`
	ValorAtual string `json:"valor_atual"`
	ValorNovo  string `json:"valor_novo"`
}

// ChangeRecord lists the changes for one existing record. Drivers carry nif
// and nome; vehicles carry matricula and marca_modelo.
type ChangeRecord struct {
	NIF         string        `json:"nif,omitempty"`
	Nome        string        `json:"nome,omitempty"`
	Matricula   string        `json:"matricula,omitempty"`
	MarcaModelo string        `json:"marca_modelo,omitempty"`
	Alteracoes  []FieldChange `json:"alteracoes"`
}

// ImportPreview is the read-only outcome of analysing an import file.
type ImportPreview struct {
	RegistosParaAtualizar int            `json:"registos_para_atualizar"`
	LinhasIgnoradas       int            `json:"linhas_ignoradas"`
	Preview               []ChangeRecord `json:"preview"`
	Erros                 []string       `json:"erros,omitempty"`
}

// ImportResult is the outcome of committing an import.
type ImportResult struct {
	Tipo        string   `json:"tipo"`
	Atualizados int      `json:"atualizados"`
	Erros       []string `json:"erros"`
}

// ImportRequest carries one uploaded file through preview or commit.
type ImportRequest struct {
	Tipo      string
	FileName  string
	Data      []byte
	Delimiter rune

	// Mapping overrides header matching: file header -> field ID.
	Mapping map[string]string

	// IdempotencyKey, when set, makes a commit replay its stored result.
	IdempotencyKey string

	// PreviewDigest, when set, is the FileDigest of the previewed file. A
	// commit of any other content fails with ErrFileChanged.
	PreviewDigest string
}

// ImportSummary is one entry of the import history.
type ImportSummary struct {
	ID          string    `json:"id"`
	Tipo        string    `json:"tipo"`
	Ficheiro    string    `json:"ficheiro"`
	Atualizados int       `json:"atualizados"`
	NErros      int       `json:"n_erros"`
	Data        time.Time `json:"data"`
}

// ParseDelimiter accepts the two supported delimiters. An empty string
// selects fallback.
func ParseDelimiter(s string, fallback rune) (rune, error) {
	switch s {
	case "":
		return fallback, nil
	case ";":
		return ';', nil
	case ",":
		return ',', nil
	default:
		return 0, ErrInvalidDelimiter
	}
}
