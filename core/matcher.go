package core

import (
	"path"
	"strings"
)

// NameMatcher determines whether a pattern matches a full channel name.
type NameMatcher interface {
	Match(pattern string, name string) bool
}

// DefaultMatcher matches channel names privilege-first, then segment by
// segment over the dot-separated base name.
//
// A pattern carrying a privilege prefix only matches channels of that kind;
// a pattern without one matches the base name of any kind. Within the base
// name "#" spans zero or more segments and every other segment is a
// path.Match glob.
//
// Examples:
//
//	"private-orders.*" matches "private-orders.5", not "orders.5"
//	"orders.*"         matches "orders.5", "private-orders.5", "presence-orders.5"
//	"presence-#"       matches every presence channel
//	"orders.#"         matches "orders" and "orders.5.items"
//	"room-?"           matches "room-a", not "room-ab"
type DefaultMatcher struct{}

func (DefaultMatcher) Match(pattern, name string) bool {
	pk, pbase, prefixed := splitKind(pattern)
	nk, nbase, _ := splitKind(name)
	if prefixed && pk != nk {
		return false
	}
	return matchSegments(strings.Split(pbase, "."), strings.Split(nbase, "."))
}

// splitKind separates the privilege prefix from a channel name. prefixed is
// false for public names.
func splitKind(name string) (kind Kind, base string, prefixed bool) {
	for _, k := range []Kind{KindPresence, KindPrivate} {
		if rest, ok := strings.CutPrefix(name, k.Prefix()); ok {
			return k, rest, true
		}
	}
	return KindPublic, name, false
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "#" {
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pat[1:], segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(pat[0], segs[0]); err != nil || !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}
