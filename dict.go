package odm

import (
	"sort"
	"strings"

	"github.com/autom8ter/odm/errors"
	"github.com/samber/lo"
)

// Dict is the value of a dict field. Assigning or deleting a key marks the key dirty.
type Dict struct {
	field *dictField
	items map[string]any
	link  changeLink
}

func validKey(key string) error {
	if key == "" || strings.Contains(key, ".") || strings.HasPrefix(key, "$") {
		return errors.New(errors.Validation, "invalid dict key %q: keys may not be empty, contain '.' or start with '$'", key)
	}
	return nil
}

// Len returns the number of keys
func (m *Dict) Len() int {
	return len(m.items)
}

// Get returns the value of the key
func (m *Dict) Get(key string) (any, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Keys returns the keys in sorted order
func (m *Dict) Keys() []string {
	keys := lo.Keys(m.items)
	sort.Strings(keys)
	return keys
}

// Items returns a copy of the entries
func (m *Dict) Items() map[string]any {
	out := make(map[string]any, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

// Set assigns the key
func (m *Dict) Set(key string, value any) error {
	if err := validKey(key); err != nil {
		return err
	}
	v, err := wrap(m.field.elem, value, m.link.child(key), false)
	if err != nil {
		return err
	}
	if m.items == nil {
		m.items = map[string]any{}
	}
	m.items[key] = v
	m.link.mark(key)
	return nil
}

// Delete removes the key
func (m *Dict) Delete(key string) {
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	m.link.mark(key)
}

// Clear removes every key
func (m *Dict) Clear() {
	m.items = map[string]any{}
	m.link.mark("")
}
