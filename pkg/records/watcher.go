package records

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/golang/glog"
)

// WatchFunc receives the watched attributes keyed like the watch request.
type WatchFunc func(atts map[string]any) error

// Watcher delivers attribute snapshots of one record to a callback.
type Watcher struct {
	record *Record
	atts   map[string]string
	fn     WatchFunc

	mu        sync.Mutex
	values    map[string]any
	delivered bool
}

// Attributes returns the last delivered snapshot.
func (w *Watcher) Attributes() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.values)
}

// Paths returns the watched name to path mapping.
func (w *Watcher) Paths() map[string]string {
	return maps.Clone(w.atts)
}

// Unwatch stops deliveries to w.
func (w *Watcher) Unwatch() {
	w.record.Unwatch(w)
}

func (w *Watcher) isDelivered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.delivered
}

// setAttributes replaces the snapshot and calls the callback. Callback
// failures and panics are logged.
func (w *Watcher) setAttributes(values map[string]any) {
	w.mu.Lock()
	w.values = maps.Clone(values)
	w.delivered = true
	w.mu.Unlock()

	if err := w.call(values); err != nil {
		glog.Errorf("[watch]%s callback error = %s\n", w.record.id, err)
	}
}

func (w *Watcher) call(values map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.fn(maps.Clone(values))
}

// Watch registers fn for the attributes of atts and delivers the first
// snapshot before returning. When the server reports a pending update the
// record is updated first.
func (r *Record) Watch(ctx context.Context, atts map[string]string, fn WatchFunc) (*Watcher, error) {
	w := &Watcher{record: r, atts: maps.Clone(atts), fn: fn}
	r.mu.Lock()
	r.watchers = append(r.watchers, w)
	r.mu.Unlock()

	values, err := r.LoadMapped(ctx, w.atts, false)
	if err != nil {
		r.Unwatch(w)
		return nil, err
	}
	status, err := r.LoadMany(ctx, []string{modifiedPath, pendingUpdatePath}, true)
	if err != nil {
		r.Unwatch(w)
		return nil, err
	}
	if isTrue(status[1]) {
		if err := r.Update(ctx); err != nil {
			glog.Warningf("[watch]%s update error = %s\n", r.id, err)
		}
	} else {
		r.mu.Lock()
		if r.modified == nil {
			r.modified = status[0]
		}
		r.mu.Unlock()
	}
	if !w.isDelivered() {
		w.setAttributes(values)
	}
	return w, nil
}

// Unwatch removes w from r.
func (r *Record) Unwatch(w *Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = slices.DeleteFunc(r.watchers, func(x *Watcher) bool { return x == w })
}

func (r *Record) watcherList() []*Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.watchers)
}
