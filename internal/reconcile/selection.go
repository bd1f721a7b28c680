package reconcile

import (
	"fmt"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
)

// Selection is the ordered set of field ids chosen for export. It starts
// with the catalog defaults in catalog order; toggling a field on appends
// it. Selection is not safe for concurrent use; Controller guards it.
type Selection struct {
	fields []client.FieldDescriptor
	ids    []string
}

// NewSelection starts from the default fields of catalog.
func NewSelection(catalog []client.FieldDescriptor) *Selection {
	s := &Selection{fields: catalog}
	for _, f := range catalog {
		if f.Default {
			s.ids = append(s.ids, f.ID)
		}
	}
	return s
}

func (s *Selection) known(id string) bool {
	for _, f := range s.fields {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Toggle adds id at the end or removes it.
func (s *Selection) Toggle(id string) error {
	if !s.known(id) {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return nil
		}
	}
	s.ids = append(s.ids, id)
	return nil
}

// SelectAll selects every catalog field in catalog order.
func (s *Selection) SelectAll() {
	s.ids = make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		s.ids = append(s.ids, f.ID)
	}
}

// SelectNone clears the selection.
func (s *Selection) SelectNone() {
	s.ids = nil
}

// IDs returns a copy of the selected ids in selection order.
func (s *Selection) IDs() []string {
	return append([]string(nil), s.ids...)
}

func (s *Selection) Contains(id string) bool {
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *Selection) Len() int { return len(s.ids) }

// Fields returns the catalog the selection draws from.
func (s *Selection) Fields() []client.FieldDescriptor {
	return append([]client.FieldDescriptor(nil), s.fields...)
}
