package broadcaster

import (
	"sync"

	"github.com/miladsoleymani/eventcast/core"
)

// Bindings tracks which events a subscription wants delivered. Transports
// embed it in their subscription type to satisfy the Bind half of
// core.Subscription.
type Bindings struct {
	mu     sync.RWMutex
	events map[string]struct{}
	all    bool
}

func (b *Bindings) Bind(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string]struct{})
	}
	b.events[event] = struct{}{}
}

func (b *Bindings) Unbind(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, event)
}

func (b *Bindings) BindAll() {
	b.mu.Lock()
	b.all = true
	b.mu.Unlock()
}

func (b *Bindings) UnbindAll() {
	b.mu.Lock()
	b.all = false
	b.mu.Unlock()
}

// Wants reports whether event should be delivered. Internal roster events
// are always wanted.
func (b *Bindings) Wants(event string) bool {
	if core.IsInternal(event) {
		return true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.all {
		return true
	}
	_, ok := b.events[event]
	return ok
}
