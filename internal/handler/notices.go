package handler

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/reconcile"
)

// NoticeMsg delivers one controller notice to the UI.
type NoticeMsg reconcile.Notice

// Notices is a reconcile.Notifier that queues notices for the UI loop.
// Notify never blocks; when the queue is full the oldest notice is dropped.
type Notices struct {
	ch chan reconcile.Notice
}

// NewNotices returns a queue holding up to size notices.
func NewNotices(size int) *Notices {
	if size < 1 {
		size = 1
	}
	return &Notices{ch: make(chan reconcile.Notice, size)}
}

func (n *Notices) Notify(notice reconcile.Notice) {
	for {
		select {
		case n.ch <- notice:
			return
		default:
		}
		select {
		case <-n.ch:
		default:
		}
	}
}

// Wait returns a command that delivers the next notice. The model issues
// it again after each NoticeMsg.
func (n *Notices) Wait() tea.Cmd {
	return func() tea.Msg {
		return NoticeMsg(<-n.ch)
	}
}
