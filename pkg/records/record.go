package records

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/daviddao/recordkit/pkg/attpath"
	"github.com/daviddao/recordkit/pkg/model"
)

// Record is the local view of one remote record. Records are created and
// shared through a Registry; all holders of an id see the same Record.
type Record struct {
	id       string
	registry *Registry
	base     *Record // set on alias records

	fieldFlights singleflight.Group
	changes      changeCallbacks

	mu          sync.Mutex
	atts        map[string]*Attribute
	fields      map[string]any // raw fields, keyed by the raw path
	fieldGen    uint64
	fieldForced map[string]uint64
	watchers    []*Watcher
	modified    any // last seen modification stamp
	updating    *updateCycle
}

func newRecord(id string, reg *Registry, base *Record) *Record {
	return &Record{
		id:       id,
		registry: reg,
		base:     base,
		atts:        map[string]*Attribute{},
		fields:      map[string]any{},
		fieldForced: map[string]uint64{},
	}
}

// ID returns the record id.
func (r *Record) ID() string { return r.id }

// Base returns the base record of an alias, or nil.
func (r *Record) Base() *Record { return r.base }

// IsAlias reports whether r is a view over another record.
func (r *Record) IsAlias() bool { return r.base != nil }

// remoteID is the id attribute loads and saves are addressed to.
func (r *Record) remoteID() string {
	if r.base != nil {
		return r.base.remoteID()
	}
	return r.id
}

// attribute returns the named attribute, creating it when missing.
func (r *Record) attribute(name string) *Attribute {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.atts[name]
	if !ok {
		a = newAttribute(r, name)
		r.atts[name] = a
	}
	return a
}

func (r *Record) lookupAttribute(name string) *Attribute {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atts[name]
}

func (r *Record) attributes() []*Attribute {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Collect(maps.Values(r.atts))
}

// LoadOne loads a single attribute path or raw field.
func (r *Record) LoadOne(ctx context.Context, path string, force bool) (any, error) {
	return r.loadEntry(ctx, path, force)
}

// LoadMany loads every path concurrently. The result has the order of paths.
func (r *Record) LoadMany(ctx context.Context, paths []string, force bool) ([]any, error) {
	out := make([]any, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			v, err := r.loadEntry(gctx, path, force)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadMapped loads every path of atts concurrently and returns the values
// under the same keys.
func (r *Record) LoadMapped(ctx context.Context, atts map[string]string, force bool) (map[string]any, error) {
	keys := slices.Sorted(maps.Keys(atts))
	paths := make([]string, len(keys))
	for i, k := range keys {
		paths[i] = atts[k]
	}
	vals, err := r.LoadMany(ctx, paths, force)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for i, k := range keys {
		out[k] = vals[i]
	}
	return out, nil
}

func (r *Record) loadEntry(ctx context.Context, path string, force bool) (any, error) {
	p := attpath.Parse(path, attpath.DefaultInner)
	if p == nil {
		return r.loadRaw(ctx, path, force)
	}
	return r.attribute(p.Name).GetValue(ctx, p.Inner, p.Multiple, force)
}

// rawOwner is the record that holds raw fields: the end of the base chain.
func (r *Record) rawOwner() *Record {
	for r.base != nil {
		r = r.base
	}
	return r
}

func (r *Record) loadRaw(ctx context.Context, field string, force bool) (any, error) {
	o := r.rawOwner()
	o.mu.Lock()
	if v, ok := o.fields[field]; ok && !force {
		o.mu.Unlock()
		return v, nil
	}
	if force {
		o.fieldForced[field]++
		o.fieldFlights.Forget(field)
	}
	o.mu.Unlock()

	return await(ctx, &o.fieldFlights, field, func(ctx context.Context) any {
		o.mu.Lock()
		gen, seq := o.fieldGen, o.fieldForced[field]
		o.mu.Unlock()

		v, err := o.registry.source.LoadAttribute(ctx, o.id, field)
		if err != nil {
			glog.Errorf("[record]load %s %s error = %s\n", o.id, field, err)
			v = nil
		}
		o.mu.Lock()
		if o.fieldGen == gen && o.fieldForced[field] == seq {
			o.fields[field] = v
		}
		o.mu.Unlock()
		return v
	})
}

// Att returns the loaded value of path without loading it. A pending local
// value takes precedence over the server value.
func (r *Record) Att(path string) any {
	p := attpath.Parse(path, attpath.DefaultInner)
	if p == nil {
		o := r.rawOwner()
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.fields[path]
	}
	a := r.lookupAttribute(p.Name)
	if a == nil {
		return nil
	}
	return a.peek(p.Inner, p.Multiple)
}

// SetAtt records a pending local value for path. Raw fields are replaced in
// the raw field cache.
func (r *Record) SetAtt(path string, v any) {
	p := attpath.Parse(path, attpath.DefaultInner)
	if p == nil {
		o := r.rawOwner()
		o.mu.Lock()
		defer o.mu.Unlock()
		o.fields[path] = v
		return
	}
	r.attribute(p.Name).SetValue(p.Inner, v)
}

// SetAttAsync records the result of resolve as the pending value of path.
// Save waits until resolve has returned.
func (r *Record) SetAttAsync(ctx context.Context, path string, resolve func(ctx context.Context) (any, error)) {
	p := attpath.Parse(path, attpath.DefaultInner)
	if p == nil {
		glog.Warningf("[record]async set of raw field %s on %s ignored\n", path, r.id)
		return
	}
	r.attribute(p.Name).SetValueAsync(ctx, p.Inner, resolve)
}

// PersistedAtt returns the last known server value of path.
func (r *Record) PersistedAtt(path string) any {
	p := attpath.Parse(path, attpath.DefaultInner)
	if p == nil {
		return r.Att(path)
	}
	a := r.lookupAttribute(p.Name)
	if a == nil {
		return nil
	}
	return a.GetPersistedValue(p.Inner, p.Multiple)
}

// SetPersistedAtt replaces the last known server value of path.
func (r *Record) SetPersistedAtt(path string, v any) {
	p := attpath.Parse(path, attpath.DefaultInner)
	if p == nil {
		r.SetAtt(path, v)
		return
	}
	r.attribute(p.Name).SetPersistedValue(p.Inner, p.Multiple, v)
}

// IsPersisted reports whether no attribute other than _alias holds an
// unsaved value.
func (r *Record) IsPersisted() bool {
	for _, a := range r.attributes() {
		if a.name == model.AttAlias {
			continue
		}
		if !a.IsPersisted() {
			return false
		}
	}
	return true
}

func (r *Record) isReadyToSave() bool {
	for _, a := range r.attributes() {
		if !a.IsReadyToSave() {
			return false
		}
	}
	return true
}

// ToJSON returns the mutate payload of r: its remote id and every unsaved
// attribute value.
func (r *Record) ToJSON() model.RecordAtts {
	out := model.RecordAtts{ID: r.remoteID(), Attributes: map[string]any{}}
	for _, a := range r.attributes() {
		if a.name == model.AttAlias || a.IsPersisted() {
			continue
		}
		out.Attributes[a.name] = a.pendingValue()
	}
	return out
}

// Reset drops every cached and pending value. Alias records keep their
// _alias attribute.
func (r *Record) Reset() {
	r.mu.Lock()
	r.fields = map[string]any{}
	r.fieldGen++
	r.mu.Unlock()
	for _, a := range r.attributes() {
		a.reset()
	}
	if r.base != nil {
		r.attribute(model.AttAlias).SetValue(attpath.DefaultInner, r.id)
	}
}

// OnChange registers fn to run after r was saved and reloaded. The returned
// function removes it.
func (r *Record) OnChange(fn ChangeFunc) func() {
	return r.changes.add(fn)
}

// pendingRefs returns the string values held by unsaved attributes.
func (r *Record) pendingRefs() []string {
	var out []string
	for _, a := range r.attributes() {
		if a.name == model.AttAlias || a.IsPersisted() {
			continue
		}
		switch v := a.pendingValue().(type) {
		case string:
			out = append(out, v)
		case []string:
			out = append(out, v...)
		case []any:
			for _, x := range v {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
