package blueprint

import (
	"maps"
	"slices"
	"sort"
)

// Selection is an immutable set of module ids. Every change returns a new
// value; the receiver is never modified.
type Selection struct {
	ids map[string]struct{}
}

// NewSelection builds a selection from ids.
func NewSelection(ids ...string) Selection {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Selection{ids: set}
}

// Has reports whether id is selected.
func (s Selection) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (s Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids, sorted.
func (s Selection) IDs() []string {
	ids := slices.Collect(maps.Keys(s.ids))
	sort.Strings(ids)
	return ids
}

// Toggle returns a selection with id added or removed.
func (s Selection) Toggle(id string) Selection {
	next := maps.Clone(s.ids)
	if next == nil {
		next = make(map[string]struct{})
	}
	if _, ok := next[id]; ok {
		delete(next, id)
	} else {
		next[id] = struct{}{}
	}
	return Selection{ids: next}
}

// Without returns a selection with id removed.
func (s Selection) Without(id string) Selection {
	if !s.Has(id) {
		return s
	}
	next := maps.Clone(s.ids)
	delete(next, id)
	return Selection{ids: next}
}
