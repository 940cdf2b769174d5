// Package identity tracks the signed-in actor and fans out logout events.
package identity

import (
	"sync"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// Tracker is an in-process ports.Identity fed by the host application's
// authentication layer.
type Tracker struct {
	mu       sync.Mutex
	actor    string
	onLogout []func(string)
}

func NewTracker() *Tracker { return &Tracker{} }

// Login makes actor current. Switching actors logs the previous one out.
func (t *Tracker) Login(actor string) {
	t.mu.Lock()
	prev := t.actor
	t.actor = actor
	fns := t.listenersLocked()
	t.mu.Unlock()
	if prev != "" && prev != actor {
		for _, fn := range fns {
			fn(prev)
		}
	}
}

// Logout clears the current actor and notifies listeners.
func (t *Tracker) Logout() {
	t.mu.Lock()
	prev := t.actor
	t.actor = ""
	fns := t.listenersLocked()
	t.mu.Unlock()
	if prev == "" {
		return
	}
	for _, fn := range fns {
		fn(prev)
	}
}

func (t *Tracker) CurrentActor() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actor, t.actor != ""
}

func (t *Tracker) OnLogout(fn func(actor string)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.onLogout = append(t.onLogout, fn)
	t.mu.Unlock()
}

func (t *Tracker) listenersLocked() []func(string) {
	return append([]func(string){}, t.onLogout...)
}

var _ ports.Identity = (*Tracker)(nil)
