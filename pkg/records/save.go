package records

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/golang/glog"

	"github.com/daviddao/recordkit/pkg/model"
)

// Save sends r and every unsaved record it references in one mutate
// request. Records without unsaved attributes are left out. After the
// request succeeds each saved record is reset, its saved attributes are
// reloaded, change callbacks run and a background Update starts. A failed
// reload is logged; the save itself has already happened.
//
// When the server assigns a new id to r, the registry's record for that id
// is returned instead of r.
func (r *Record) Save(ctx context.Context) (*Record, error) {
	recs, err := r.readyRecordsToSave(ctx)
	if err != nil {
		return nil, err
	}

	var req model.MutateRequest
	var mutated []*Record
	for _, rec := range recs {
		if rec.IsPersisted() {
			continue
		}
		req.Records = append(req.Records, rec.ToJSON())
		mutated = append(mutated, rec)
	}
	if len(mutated) == 0 {
		return r, nil
	}
	if glog.V(2) {
		glog.Infof("[save]%s mutate %d records\n", r.id, len(mutated))
	}
	resp, err := r.registry.source.Mutate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("records: save %s: %w", r.id, err)
	}

	result := r
	for i, rec := range mutated {
		sent := req.Records[i]
		target := rec
		if i < len(resp.Records) {
			if id := resp.Records[i].ID; id != "" && id != sent.ID {
				target = r.registry.Get(id)
			}
		}
		rec.Reset()
		if target != rec {
			target.Reset()
		}
		names := slices.Sorted(maps.Keys(sent.Attributes))
		if _, err := target.LoadMany(ctx, names, true); err != nil {
			glog.Warningf("[save]%s reload error = %s\n", target.id, err)
		}
		target.changes.emit(target)
		go func() {
			if err := target.Update(context.WithoutCancel(ctx)); err != nil {
				glog.Warningf("[save]%s update error = %s\n", target.id, err)
			}
		}()
		if rec == r {
			result = target
		}
	}
	return result, nil
}

// readyRecordsToSave waits until every record to save is ready. Values
// resolved meanwhile may link more records, which are waited for in turn.
func (r *Record) readyRecordsToSave(ctx context.Context) ([]*Record, error) {
	recs := r.linkedRecordsToSave()
	for {
		if err := r.waitUntilReadyToSave(ctx, recs); err != nil {
			return nil, err
		}
		next := r.linkedRecordsToSave()
		if !hasNew(recs, next) {
			return next, nil
		}
		recs = next
	}
}

func hasNew(prev, next []*Record) bool {
	for _, rec := range next {
		if !slices.Contains(prev, rec) {
			return true
		}
	}
	return false
}

// linkedRecordsToSave returns r followed by the records reachable through
// the values of unsaved attributes that are themselves unsaved or still
// resolving a value.
func (r *Record) linkedRecordsToSave() []*Record {
	seen := map[*Record]bool{r: true}
	out := []*Record{r}
	for i := 0; i < len(out); i++ {
		for _, id := range out[i].pendingRefs() {
			rec, ok := r.registry.lookup(id)
			if !ok || seen[rec] {
				continue
			}
			seen[rec] = true
			if rec.IsPersisted() && rec.isReadyToSave() {
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}

func (r *Record) waitUntilReadyToSave(ctx context.Context, recs []*Record) error {
	cfg := r.registry.cfg
	attempts, err := poll(ctx, pollConfig{maxAttempts: cfg.SaveReadyMaxAttempts, delay: cfg.SaveReadyDelay}, func() (bool, error) {
		for _, rec := range recs {
			if !rec.isReadyToSave() {
				return false, nil
			}
		}
		return true, nil
	})
	if errors.Is(err, errPollExhausted) {
		return fmt.Errorf("%w: %s after %d attempts", ErrNotReadyToSave, r.id, attempts)
	}
	return err
}
