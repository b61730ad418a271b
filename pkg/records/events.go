package records

import (
	"slices"
	"sync"
)

// ChangeFunc is called after a record was saved and reloaded.
type ChangeFunc func(r *Record)

type changeCallback struct {
	id int
	fn ChangeFunc
}

// changeCallbacks is a copy-on-write callback list. emit works on a snapshot
// so callbacks may add or remove callbacks.
type changeCallbacks struct {
	mu        sync.Mutex
	nextID    int
	callbacks []changeCallback
}

func (c *changeCallbacks) add(fn ChangeFunc) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	next := slices.Clone(c.callbacks)
	c.callbacks = append(next, changeCallback{id: id, fn: fn})
	return func() { c.remove(id) }
}

func (c *changeCallbacks) remove(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.callbacks, func(cb changeCallback) bool { return cb.id == id })
	if i < 0 {
		return
	}
	next := slices.Clone(c.callbacks)
	c.callbacks = slices.Delete(next, i, i+1)
}

func (c *changeCallbacks) get() []changeCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks
}

func (c *changeCallbacks) emit(r *Record) {
	for _, cb := range c.get() {
		cb.fn(r)
	}
}
