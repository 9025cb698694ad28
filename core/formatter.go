package core

import (
	"strings"
	"sync"
)

const (
	// namespaceSeparator joins namespace segments in a qualified event name.
	namespaceSeparator = `\`

	// qualifiedMarker marks an event name that must be used verbatim.
	qualifiedMarker = "."
)

// EventFormatter turns short event names into the fully qualified names
// transports deliver, e.g. "OrderShipped" under namespace "App.Events"
// becomes `App\Events\OrderShipped`.
//
// Rules, applied in order:
//
//	".Foo" or `\Foo`   -> marked as qualified, unchanged
//	`App\Foo`          -> already qualified, unchanged
//	namespace ""       -> unchanged
//	"Foo"              -> namespace + "." + "Foo", dots replaced by `\`
type EventFormatter struct {
	mu        sync.RWMutex
	namespace string
}

// NewEventFormatter creates a formatter for the given namespace. An empty
// namespace disables prefixing.
func NewEventFormatter(namespace string) *EventFormatter {
	return &EventFormatter{namespace: namespace}
}

// Format returns the qualified name for event. Format(Format(e)) equals
// Format(e) for every e.
func (f *EventFormatter) Format(event string) string {
	if isMarked(event) || strings.Contains(event, namespaceSeparator) {
		return event
	}

	f.mu.RLock()
	ns := f.namespace
	f.mu.RUnlock()

	if ns == "" {
		return event
	}
	return strings.ReplaceAll(ns+"."+event, ".", namespaceSeparator)
}

// Key returns the name event is delivered under: the formatted name with
// any leading qualification marker removed.
func (f *EventFormatter) Key(event string) string {
	name := f.Format(event)
	if isMarked(name) {
		return name[1:]
	}
	return name
}

func isMarked(event string) bool {
	return strings.HasPrefix(event, qualifiedMarker) || strings.HasPrefix(event, namespaceSeparator)
}

// SetNamespace replaces the namespace for subsequent Format calls.
func (f *EventFormatter) SetNamespace(ns string) {
	f.mu.Lock()
	f.namespace = ns
	f.mu.Unlock()
}

// Namespace returns the current namespace.
func (f *EventFormatter) Namespace() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.namespace
}
