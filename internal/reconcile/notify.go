package reconcile

import (
	"sync"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
)

// Level styles a notice. Info is used for successful outcomes that changed
// nothing, never for failures.
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Success:
		return "sucesso"
	case Warning:
		return "aviso"
	case Error:
		return "erro"
	}
	return "desconhecido"
}

// Notice is one user-facing message. Tipo is empty for notices not tied to
// an entity type.
type Notice struct {
	Tipo    client.Tipo
	Level   Level
	Message string
}

// Notifier shows notices. Controller calls it without holding its lock, so
// implementations may call back into the controller.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Recorder keeps every notice in order.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
