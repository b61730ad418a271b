package records

import (
	"context"
	"reflect"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	"github.com/daviddao/recordkit/pkg/attpath"
)

// Attribute is the loading and editing state of one named attribute of one
// record.
type Attribute struct {
	record *Record
	name   string

	flights singleflight.Group

	mu       sync.Mutex
	values   map[string]any    // persisted value per projection slot
	gen      uint64            // bumped by reset, drops results of older fetches
	forced   map[string]uint64 // bumped per slot by a forced fetch
	newValue any
	newSlot  string
	dirty    bool
	resolves int // asynchronous values still being resolved
}

func newAttribute(r *Record, name string) *Attribute {
	return &Attribute{record: r, name: name, values: map[string]any{}, forced: map[string]uint64{}}
}

// slot is the cache key of a projection.
func slot(inner string, multiple bool) string {
	if multiple {
		return "[]" + inner
	}
	return inner
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// GetValue returns the value of the inner projection. A pending local value
// shadows the remote one. Otherwise the cached value is returned, unless it
// is missing or force is set, in which case it is fetched from the source.
// Concurrent fetches of one projection share a single request. A forced
// fetch supersedes the fetches already in flight: their results are returned
// to their callers but not cached.
func (a *Attribute) GetValue(ctx context.Context, inner string, multiple, force bool) (any, error) {
	key := slot(inner, multiple)
	a.mu.Lock()
	if a.dirty {
		v := a.newValue
		a.mu.Unlock()
		return v, nil
	}
	if v, ok := a.values[key]; ok && !force {
		a.mu.Unlock()
		return v, nil
	}
	if force {
		a.forced[key]++
		a.flights.Forget(key)
	}
	a.mu.Unlock()

	return await(ctx, &a.flights, key, func(ctx context.Context) any {
		return a.fetch(ctx, key, attpath.Path{Name: a.name, Inner: inner, Multiple: multiple})
	})
}

// fetch loads one projection and caches it unless a reset or a forced fetch
// happened after it started.
func (a *Attribute) fetch(ctx context.Context, key string, p attpath.Path) any {
	a.mu.Lock()
	gen, seq := a.gen, a.forced[key]
	a.mu.Unlock()

	r := a.record
	path := p.String()
	if glog.V(2) {
		glog.Infof("[att]load %s %s\n", r.id, path)
	}
	v, err := r.registry.source.LoadAttribute(ctx, r.remoteID(), path)
	if err != nil {
		glog.Errorf("[att]load %s %s error = %s\n", r.id, path, err)
		v = nil
	}
	a.mu.Lock()
	if a.gen == gen && a.forced[key] == seq {
		a.values[key] = v
	}
	a.mu.Unlock()
	return v
}

// await runs fetch once per key across concurrent callers. The fetch itself
// is detached from the caller's cancellation so that other waiters still get
// the value; a cancelled caller stops waiting and gets ctx.Err().
func await(ctx context.Context, g *singleflight.Group, key string, fetch func(ctx context.Context) any) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) {
		return fetch(detached), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, nil
	}
}

// peek returns the current value of a projection without fetching.
func (a *Attribute) peek(inner string, multiple bool) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dirty {
		return a.newValue
	}
	return a.values[slot(inner, multiple)]
}

// SetValue records a pending local value. Nothing is sent until Save.
func (a *Attribute) SetValue(inner string, v any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(inner, v)
}

func (a *Attribute) setLocked(inner string, v any) {
	a.newValue = v
	a.newSlot = slot(inner, false)
	a.dirty = true
}

// SetValueAsync resolves a value in the background and records it as the
// pending value. The attribute is not ready to save until resolve returns.
// A failed resolve is logged and keeps the previous pending value.
func (a *Attribute) SetValueAsync(ctx context.Context, inner string, resolve func(ctx context.Context) (any, error)) {
	a.mu.Lock()
	a.resolves++
	a.mu.Unlock()
	go func() {
		v, err := resolve(ctx)
		a.mu.Lock()
		defer a.mu.Unlock()
		a.resolves--
		if err != nil {
			glog.Errorf("[att]resolve %s.%s error = %s\n", a.record.id, a.name, err)
			return
		}
		a.setLocked(inner, v)
	}()
}

// GetPersistedValue returns the last known server value of a projection.
func (a *Attribute) GetPersistedValue(inner string, multiple bool) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.values[slot(inner, multiple)]
}

// SetPersistedValue replaces the last known server value of a projection.
func (a *Attribute) SetPersistedValue(inner string, multiple bool, v any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[slot(inner, multiple)] = v
}

// IsPersisted reports whether the attribute has no pending value that
// differs from its persisted value.
func (a *Attribute) IsPersisted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty {
		return true
	}
	persisted, ok := a.values[a.newSlot]
	return ok && reflect.DeepEqual(persisted, a.newValue)
}

// IsReadyToSave reports whether no asynchronous value is being resolved.
func (a *Attribute) IsReadyToSave() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resolves == 0
}

// pendingValue returns the value to send on save.
func (a *Attribute) pendingValue() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.newValue
}

func (a *Attribute) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values = map[string]any{}
	a.gen++
	a.newValue = nil
	a.newSlot = ""
	a.dirty = false
}
