package odm

import (
	"sort"
	"strconv"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/util"
)

// List is the value of a list field. Assigning an element marks its index dirty; structural changes
// mark the whole list dirty.
type List struct {
	field *listField
	items []any
	link  changeLink
}

// Len returns the number of elements
func (l *List) Len() int {
	return len(l.items)
}

// Get returns the element at the index (nil when out of range)
func (l *List) Get(i int) any {
	if i < 0 || i >= len(l.items) {
		return nil
	}
	return l.items[i]
}

// Items returns a copy of the elements
func (l *List) Items() []any {
	return append([]any{}, l.items...)
}

func (l *List) wrap(i int, value any) (any, error) {
	return wrap(l.field.elem, value, l.link.child(strconv.Itoa(i)), false)
}

func (l *List) check(i int) error {
	if i < 0 || i >= len(l.items) {
		return errors.New(errors.Validation, "index %d out of range for %s (length %d)", i, l.field.name, len(l.items))
	}
	return nil
}

// Set assigns the element at the index
func (l *List) Set(i int, value any) error {
	if err := l.check(i); err != nil {
		return err
	}
	v, err := l.wrap(i, value)
	if err != nil {
		return err
	}
	l.items[i] = v
	l.link.mark(strconv.Itoa(i))
	return nil
}

// Append adds the values to the end of the list
func (l *List) Append(values ...any) error {
	for _, value := range values {
		v, err := l.wrap(len(l.items), value)
		if err != nil {
			return err
		}
		l.items = append(l.items, v)
	}
	l.link.mark("")
	return nil
}

// Insert inserts the value before the index. An index equal to the length appends.
func (l *List) Insert(i int, value any) error {
	if i != len(l.items) {
		if err := l.check(i); err != nil {
			return err
		}
	}
	v, err := l.wrap(i, value)
	if err != nil {
		return err
	}
	l.items = append(l.items[:i], append([]any{v}, l.items[i:]...)...)
	l.link.mark("")
	return nil
}

// Remove removes the element at the index and returns it
func (l *List) Remove(i int) (any, error) {
	if err := l.check(i); err != nil {
		return nil, err
	}
	v := l.items[i]
	l.items = util.RemoveElement(i, l.items)
	l.link.mark("")
	return v, nil
}

// Pop removes the last element and returns it
func (l *List) Pop() (any, error) {
	if len(l.items) == 0 {
		return nil, errors.New(errors.Validation, "pop from empty list %s", l.field.name)
	}
	return l.Remove(len(l.items) - 1)
}

// Sort sorts the list in place
func (l *List) Sort(less func(a, b any) bool) {
	sort.SliceStable(l.items, func(i, j int) bool {
		return less(l.items[i], l.items[j])
	})
	l.link.mark("")
}

// Clear removes every element
func (l *List) Clear() {
	l.items = nil
	l.link.mark("")
}
