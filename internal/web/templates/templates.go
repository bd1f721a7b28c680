// Package templates renders the exchange page and its HTMX partials. The
// *_templ.go files are generated from the .templ sources by templ generate.
package templates

import (
	"encoding/json"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
)

// EntityView is one entity section of the page.
type EntityView struct {
	Tipo   string
	Label  string
	Fields []core.FieldDescriptor
}

// PageData feeds Page.
type PageData struct {
	Entities  []EntityView
	Delimiter string

	// SignIn shows the session form. SignInError is shown under it.
	SignIn      bool
	SignInError string
}

// Commit is what the confirm button of a preview sends back: the digest of
// the previewed file and the idempotency key of this preview.
type Commit struct {
	Digest string
	Key    string
}

func (c Commit) headers() string {
	b, _ := json.Marshal(map[string]string{"Idempotency-Key": c.Key})
	return string(b)
}

func (c Commit) vals() string {
	b, _ := json.Marshal(map[string]string{"ficheiro_sha256": c.Digest})
	return string(b)
}

type delimiterOption struct {
	Value string
	Label string
}

var delimiterOptions = []delimiterOption{
	{";", "Ponto e vírgula (;)"},
	{",", "Vírgula (,)"},
}

func keyHeader(tipo string) string {
	if tipo == core.TipoVeiculos {
		return "Matrícula"
	}
	return "NIF"
}

func nameHeader(tipo string) string {
	if tipo == core.TipoVeiculos {
		return "Marca / Modelo"
	}
	return "Nome"
}

func recordKey(tipo string, rec core.ChangeRecord) string {
	if tipo == core.TipoVeiculos {
		return rec.Matricula
	}
	return rec.NIF
}

func recordName(tipo string, rec core.ChangeRecord) string {
	if tipo == core.TipoVeiculos {
		return rec.MarcaModelo
	}
	return rec.Nome
}
