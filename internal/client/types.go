package client

import (
	"errors"
	"fmt"
	"time"
)

// Tipo is an exportable entity type.
type Tipo string

const (
	Motoristas Tipo = "motoristas"
	Veiculos   Tipo = "veiculos"
)

// Tipos lists the entity types in display order.
var Tipos = []Tipo{Motoristas, Veiculos}

// Valid reports whether t is a known entity type.
func (t Tipo) Valid() bool {
	return t == Motoristas || t == Veiculos
}

// Label is the Portuguese display name.
func (t Tipo) Label() string {
	switch t {
	case Motoristas:
		return "Motoristas"
	case Veiculos:
		return "Veículos"
	}
	return string(t)
}

// ParseTipo accepts "motoristas" or "veiculos".
func ParseTipo(s string) (Tipo, error) {
	t := Tipo(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTipo, s)
	}
	return t, nil
}

// Delimiter separates columns in exported and imported files.
type Delimiter string

const (
	Semicolon Delimiter = ";"
	Comma     Delimiter = ","
)

// Valid reports whether d is ';' or ','.
func (d Delimiter) Valid() bool {
	return d == Semicolon || d == Comma
}

// ParseDelimiter accepts ";" or ",".
func ParseDelimiter(s string) (Delimiter, error) {
	d := Delimiter(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDelimiter, s)
	}
	return d, nil
}

var (
	ErrUnknownTipo      = errors.New("unknown entity type")
	ErrInvalidDelimiter = errors.New("invalid delimiter")
	ErrNoFields         = errors.New("no fields selected")
	ErrInvalidResponse  = errors.New("invalid server response")
)

// FieldDescriptor is one exportable field.
type FieldDescriptor struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}

// Catalog holds the fields of every entity type, in server order.
type Catalog map[Tipo][]FieldDescriptor

func (c Catalog) validate() error {
	for tipo, fields := range c {
		seen := make(map[string]bool, len(fields))
		for i, f := range fields {
			if f.ID == "" {
				return fmt.Errorf("%w: %s field %d has no id", ErrInvalidResponse, tipo, i)
			}
			if seen[f.ID] {
				return fmt.Errorf("%w: %s field %q repeated", ErrInvalidResponse, tipo, f.ID)
			}
			seen[f.ID] = true
		}
	}
	return nil
}

// FieldChange is one changed value, formatted for display.
type FieldChange struct {
	Campo      string `json:"campo"`
	ValorAtual string `json:"valor_atual"`
	ValorNovo  string `json:"valor_novo"`
}

// ChangeRecord groups the changes of one record. Drivers carry NIF and
// Nome; vehicles carry Matricula and MarcaModelo.
type ChangeRecord struct {
	NIF         string        `json:"nif,omitempty"`
	Nome        string        `json:"nome,omitempty"`
	Matricula   string        `json:"matricula,omitempty"`
	MarcaModelo string        `json:"marca_modelo,omitempty"`
	Alteracoes  []FieldChange `json:"alteracoes"`
}

// Key returns the business key for tipo.
func (r ChangeRecord) Key(tipo Tipo) string {
	if tipo == Veiculos {
		return r.Matricula
	}
	return r.NIF
}

// Name returns the display name for tipo.
func (r ChangeRecord) Name(tipo Tipo) string {
	if tipo == Veiculos {
		return r.MarcaModelo
	}
	return r.Nome
}

// ImportPreview is the server diff of an uploaded file.
type ImportPreview struct {
	RegistosParaAtualizar int            `json:"registos_para_atualizar"`
	LinhasIgnoradas       int            `json:"linhas_ignoradas"`
	Preview               []ChangeRecord `json:"preview"`
	Erros                 []string       `json:"erros,omitempty"`
}

func (p *ImportPreview) validate() error {
	if p.RegistosParaAtualizar < 0 || p.LinhasIgnoradas < 0 {
		return fmt.Errorf("%w: negative preview counts", ErrInvalidResponse)
	}
	if p.Preview == nil {
		p.Preview = []ChangeRecord{}
	}
	return nil
}

// ImportResult is the outcome of a commit.
type ImportResult struct {
	Tipo        Tipo     `json:"tipo"`
	Atualizados int      `json:"atualizados"`
	Erros       []string `json:"erros"`
}

func (r *ImportResult) validate(want Tipo) error {
	if !r.Tipo.Valid() {
		return fmt.Errorf("%w: tipo %q", ErrInvalidResponse, r.Tipo)
	}
	if r.Tipo != want {
		return fmt.Errorf("%w: result for %s, expected %s", ErrInvalidResponse, r.Tipo, want)
	}
	if r.Atualizados < 0 {
		return fmt.Errorf("%w: negative atualizados", ErrInvalidResponse)
	}
	if r.Erros == nil {
		r.Erros = []string{}
	}
	return nil
}

// ImportSummary is one entry of the import history.
type ImportSummary struct {
	ID          string    `json:"id"`
	Tipo        Tipo      `json:"tipo"`
	Ficheiro    string    `json:"ficheiro"`
	Atualizados int       `json:"atualizados"`
	NErros      int       `json:"n_erros"`
	Data        time.Time `json:"data"`
}

// File is an import file held in memory so it can be re-sent on confirm.
type File struct {
	Name string
	Data []byte
}
