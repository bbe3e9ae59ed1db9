package odm

import (
	"sort"
	"strings"
)

// ChangeSet records the dirty storage paths of a document. A recorded path covers all of its
// descendants; marking a descendant of a recorded path is a no-op.
type ChangeSet struct {
	paths map[string]struct{}
}

// NewChangeSet returns an empty ChangeSet
func NewChangeSet() *ChangeSet {
	return &ChangeSet{paths: map[string]struct{}{}}
}

// Mark records the path as dirty
func (c *ChangeSet) Mark(path string) {
	if path == "" || c.Covers(path) {
		return
	}
	prefix := path + "."
	for p := range c.paths {
		if strings.HasPrefix(p, prefix) {
			delete(c.paths, p)
		}
	}
	c.paths[path] = struct{}{}
}

// Covers reports whether the path or one of its ancestors is recorded
func (c *ChangeSet) Covers(path string) bool {
	if len(c.paths) == 0 {
		return false
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			if _, ok := c.paths[path[:i]]; ok {
				return true
			}
		}
	}
	_, ok := c.paths[path]
	return ok
}

// Paths returns the recorded paths in sorted order
func (c *ChangeSet) Paths() []string {
	paths := make([]string, 0, len(c.paths))
	for p := range c.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of recorded paths
func (c *ChangeSet) Len() int {
	return len(c.paths)
}

// Clear forgets every recorded path
func (c *ChangeSet) Clear() {
	c.paths = map[string]struct{}{}
}

// changeLink is a container's non-owning reference to the change set of the document that owns it
type changeLink struct {
	tracker *ChangeSet
	key     string
}

func (l changeLink) mark(sub string) {
	if l.tracker == nil {
		return
	}
	if sub == "" {
		l.tracker.Mark(l.key)
		return
	}
	l.tracker.Mark(l.key + "." + sub)
}

func (l changeLink) child(sub string) changeLink {
	return changeLink{tracker: l.tracker, key: l.key + "." + sub}
}
