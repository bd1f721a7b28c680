package reconcile

import "github.com/paulodiramos/tvdefleetonline-sub002/internal/client"

// State is the import state of one entity type. The concrete types carry
// exactly the data valid in that state:
//
//	Idle → Uploading → Previewed → Committing → Committed
//
// A failed upload returns to Idle keeping the file; a failed commit
// returns to Previewed keeping file and diff.
type State interface {
	state()
}

// Idle waits for a file. File is set after a failed upload so the preview
// can be retried without choosing the file again.
type Idle struct {
	File *client.File
}

// Uploading is a preview request in flight.
type Uploading struct {
	File client.File
}

// Previewed holds the server diff of File. Key is the idempotency key of
// the commit of this preview; each preview gets a new one and a retried
// commit reuses it.
type Previewed struct {
	File    client.File
	Preview client.ImportPreview
	Key     string
}

// Committing is a confirm request in flight.
type Committing struct {
	File    client.File
	Preview client.ImportPreview
	Key     string
}

// Committed holds the result of the last commit. File and preview are gone;
// a new upload is needed for any further import.
type Committed struct {
	Result client.ImportResult
}

func (Idle) state()       {}
func (Uploading) state()  {}
func (Previewed) state()  {}
func (Committing) state() {}
func (Committed) state()  {}

// CanConfirm reports whether s allows a commit: a preview with at least one
// record to update.
func CanConfirm(s State) bool {
	p, ok := s.(Previewed)
	return ok && p.Preview.RegistosParaAtualizar > 0
}

// InFlight reports whether s waits on the server.
func InFlight(s State) bool {
	switch s.(type) {
	case Uploading, Committing:
		return true
	}
	return false
}

// StateName is a short label for logs and status lines.
func StateName(s State) string {
	switch s.(type) {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Previewed:
		return "previewed"
	case Committing:
		return "committing"
	case Committed:
		return "committed"
	}
	return "unknown"
}
