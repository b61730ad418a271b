package records

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/golang/glog"

	"github.com/daviddao/recordkit/pkg/model"
)

var (
	modifiedPath      = model.AttModified + "?str"
	pendingUpdatePath = model.AttPendingUpdate + "?bool"
)

// updateCycle is one running Update. Callers that arrive while it runs wait
// for the same result.
type updateCycle struct {
	done chan struct{}
	err  error
}

// Update polls the modification stamp of r, waiting while the server reports
// a pending update. When the stamp changed since the last cycle every watcher
// is reloaded and notified. Concurrent calls share one cycle.
//
// Watcher reload failures are logged and the watcher is handed its last
// attributes. ErrUpdateTimeout is returned when the pending update outlasts
// Config.UpdateMaxAttempts polls.
func (r *Record) Update(ctx context.Context) error {
	r.mu.Lock()
	c := r.updating
	if c == nil {
		c = &updateCycle{done: make(chan struct{})}
		r.updating = c
		go r.runUpdate(context.WithoutCancel(ctx), c)
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.err
	}
}

func (r *Record) runUpdate(ctx context.Context, c *updateCycle) {
	err := r.innerUpdate(ctx)
	if err != nil {
		glog.Warningf("[update]%s error = %s\n", r.id, err)
	}
	r.mu.Lock()
	if r.updating == c {
		r.updating = nil
	}
	r.mu.Unlock()
	c.err = err
	close(c.done)
}

func (r *Record) innerUpdate(ctx context.Context) error {
	cfg := r.registry.cfg
	var modified any
	attempts, err := poll(ctx, pollConfig{maxAttempts: cfg.UpdateMaxAttempts, delay: cfg.UpdateDelay}, func() (bool, error) {
		vals, err := r.LoadMany(ctx, []string{modifiedPath, pendingUpdatePath}, true)
		if err != nil {
			return false, err
		}
		modified = vals[0]
		return !isTrue(vals[1]), nil
	})
	if errors.Is(err, errPollExhausted) {
		return fmt.Errorf("%w: %s after %d attempts", ErrUpdateTimeout, r.id, attempts)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	changed := !reflect.DeepEqual(r.modified, modified)
	r.modified = modified
	r.mu.Unlock()
	if !changed {
		return nil
	}
	if glog.V(2) {
		glog.Infof("[update]%s modified %v\n", r.id, modified)
	}
	for _, w := range r.watcherList() {
		values, err := r.LoadMapped(ctx, w.atts, true)
		if err != nil {
			glog.Errorf("[update]%s watcher reload error = %s\n", r.id, err)
			values = w.Attributes()
		}
		w.setAttributes(values)
	}
	return nil
}

func isTrue(v any) bool {
	switch vv := v.(type) {
	case bool:
		return vv
	case string:
		return vv == "true"
	}
	return false
}
