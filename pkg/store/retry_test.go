package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/daviddao/recordkit/pkg/model"
)

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"constraint", errors.New("UNIQUE constraint failed: records.id"), false},
		{"busy", errors.New("sqlite: (5) database is busy"), true},
		{"table locked", errors.New("sqlite: (6) database table is locked"), true},
		{"short read", errors.New("(522) IOERR_SHORT_READ"), true},
		{"mutate wraps busy", fmt.Errorf("mutate: %w", errors.New("database is locked")), true},
		{"mutate wraps constraint", fmt.Errorf("mutate: %w", errors.New("FOREIGN KEY constraint failed")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientSQLiteErr(tt.err); got != tt.want {
				t.Errorf("isTransientSQLiteErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryOp(t *testing.T) {
	busy := errors.New("SQLITE_BUSY")
	constraint := errors.New("UNIQUE constraint failed: records.id")
	tests := []struct {
		name       string
		maxRetries int
		errs       []error // per call, nil once exhausted
		wantCalls  int
		wantErr    error
	}{
		{"batch commits first time", 3, nil, 1, nil},
		{"batch commits after contention", 3, []error{busy, busy}, 3, nil},
		{"constraint is not retried", 3, []error{constraint}, 1, constraint},
		{"contention outlasts retries", 2, []error{busy, busy, busy, busy}, 3, busy},
		{"no retries", 0, []error{busy}, 1, busy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := retryConfig{maxRetries: tt.maxRetries, baseDelay: time.Millisecond, maxDelay: 5 * time.Millisecond}
			calls := 0
			err := retryOp(context.Background(), cfg, func() error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})
			if err != tt.wantErr {
				t.Errorf("retryOp error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("retryOp calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := retryConfig{baseDelay: 50 * time.Millisecond, maxDelay: 150 * time.Millisecond}
	for attempt, lo := range []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond, 150 * time.Millisecond} {
		d := backoffDelay(cfg, attempt)
		if d < lo || d >= lo+cfg.baseDelay {
			t.Errorf("backoffDelay(attempt %d) = %v, want in [%v, %v)", attempt, d, lo, lo+cfg.baseDelay)
		}
	}
}

func TestRetryOpStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := retryConfig{maxRetries: 5, baseDelay: time.Second, maxDelay: time.Second}
	start := time.Now()
	err := retryOp(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("SQLITE_BUSY")
	})
	if err == nil {
		t.Error("expected the transient error after cancel")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancel took effect, got %d", calls)
	}
	if time.Since(start) >= time.Second {
		t.Errorf("cancel should end the backoff wait early")
	}
}

// Two handles on one database file commit linked batches concurrently.
func TestMutateConcurrentWriters(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	var stores []*Store
	for range 2 {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("New(%q): %v", dbPath, err)
		}
		t.Cleanup(func() { s.Close() })
		stores = append(stores, s)
	}

	const batches = 10
	var wg sync.WaitGroup
	errs := make(chan error, len(stores)*batches)
	for w, s := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range batches {
				owner := model.NewID("person")
				_, err := s.Mutate(context.Background(), model.MutateRequest{Records: []model.RecordAtts{
					{ID: model.NewID("task"), Attributes: map[string]any{"title": fmt.Sprintf("w%d-%d", w, i), "owner": owner}},
					{ID: owner, Attributes: map[string]any{"name": "Ann"}},
				}})
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Mutate: %v", err)
	}
	if got, want := stores[0].CountRecords(), int64(2*len(stores)*batches); got != want {
		t.Errorf("CountRecords = %d, want %d", got, want)
	}
}
