package core

import (
	"encoding/json"
	"sort"
	"sync"
)

// PresenceChannel is a PrivateChannel that tracks who else is subscribed.
// The roster is only ever changed by the transport.
type PresenceChannel struct {
	*PrivateChannel

	// deliverMu serializes roster callbacks so the initial Here always
	// precedes Joining and Leaving for the same subscription.
	deliverMu sync.Mutex

	mu      sync.Mutex
	members map[string]Member
	ready   bool
	pending []Event
	here    []func([]Member)
	joining []func(Member)
	leaving []func(Member)
}

func newPresenceChannel(ch *Channel) *PresenceChannel {
	p := &PresenceChannel{
		PrivateChannel: &PrivateChannel{Channel: ch},
		members:        make(map[string]Member),
	}
	ch.onResolve = p.resolved
	ch.onInternal = p.internal
	ch.onReset = p.reset
	return p
}

// Here registers cb for the initial roster. It runs once per subscription;
// when the roster is already known it runs immediately.
func (p *PresenceChannel) Here(cb func([]Member)) *PresenceChannel {
	p.mu.Lock()
	p.here = append(p.here, cb)
	var snap []Member
	if p.ready {
		snap = p.snapshotLocked()
	}
	ready := p.ready
	p.mu.Unlock()

	if ready {
		cb(snap)
	}
	return p
}

// Joining registers cb for members joining after the initial roster.
func (p *PresenceChannel) Joining(cb func(Member)) *PresenceChannel {
	p.mu.Lock()
	p.joining = append(p.joining, cb)
	p.mu.Unlock()
	return p
}

// Leaving registers cb for members leaving the channel.
func (p *PresenceChannel) Leaving(cb func(Member)) *PresenceChannel {
	p.mu.Lock()
	p.leaving = append(p.leaving, cb)
	p.mu.Unlock()
	return p
}

// Members returns the current roster ordered by member id.
func (p *PresenceChannel) Members() []Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *PresenceChannel) snapshotLocked() []Member {
	out := make([]Member, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *PresenceChannel) resolved(sub Subscription) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	p.members = make(map[string]Member)
	for _, m := range sub.Members() {
		p.members[m.ID] = m
	}
	p.ready = true
	pending := p.pending
	p.pending = nil
	here := append([]func([]Member){}, p.here...)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	for _, cb := range here {
		cb(snap)
	}
	for _, e := range pending {
		p.apply(e)
	}
}

func (p *PresenceChannel) internal(e Event) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if !p.ready {
		p.pending = append(p.pending, e)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.apply(e)
}

// apply updates the roster for one delta. deliverMu must be held.
func (p *PresenceChannel) apply(e Event) {
	var m Member
	if err := json.Unmarshal(e.Data, &m); err != nil || m.ID == "" {
		p.connector.logger.Warn("malformed roster event",
			"channel", p.name, "event", e.Name, "error", err)
		return
	}

	p.mu.Lock()
	var cbs []func(Member)
	switch e.Name {
	case EventMemberAdded:
		_, known := p.members[m.ID]
		p.members[m.ID] = m
		if !known {
			cbs = append(cbs, p.joining...)
		}
	case EventMemberRemoved:
		if old, known := p.members[m.ID]; known {
			delete(p.members, m.ID)
			if len(m.Info) == 0 {
				m = old
			}
			cbs = append(cbs, p.leaving...)
		}
	}
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(m)
	}
}

func (p *PresenceChannel) reset() {
	p.mu.Lock()
	p.members = make(map[string]Member)
	p.ready = false
	p.pending = nil
	p.mu.Unlock()
}
