// Package records binds remote records to local state.
//
// A Record is an addressable remote entity whose attributes are loaded
// lazily, one attribute path at a time (see package attpath), cached per
// projection and written back in batches. Records are obtained from a
// Registry, which keeps at most one live Record per id for the session.
//
// Reads are memoized: a second load of the same attribute projection returns
// the cached value, or joins the fetch already in flight. Local writes are
// held as pending values until Save sends every changed record, together
// with the unsaved records they reference, in one mutate request. Watchers
// receive fresh attribute snapshots whenever Update notices that the record
// changed on the server.
//
// Fetch failures of single attributes are logged and read as nil so that a
// batch load is never aborted by one attribute. Save failures are returned
// to the caller. Update is a best-effort refresh: its failures are logged
// and watchers keep their last attributes.
package records

import (
	"context"
	"errors"
	"time"

	"github.com/daviddao/recordkit/pkg/model"
)

// Source is the remote side of the records client.
type Source interface {
	// LoadAttribute resolves one attribute path of a record.
	LoadAttribute(ctx context.Context, recordID, path string) (any, error)
	// Mutate applies a batch of record changes.
	Mutate(ctx context.Context, req model.MutateRequest) (model.MutateResponse, error)
}

var (
	// ErrNotReadyToSave is returned by Save when an attribute keeps waiting
	// for an asynchronous value longer than the configured attempts allow.
	ErrNotReadyToSave = errors.New("records: not ready to save")
	// ErrUpdateTimeout is returned by Update when the server keeps reporting
	// a pending update longer than the configured attempts allow.
	ErrUpdateTimeout = errors.New("records: pending update did not finish")
)

// Config tunes the polling loops and the registry. Zero fields take the
// values of DefaultConfig.
type Config struct {
	// UpdateDelay is the wait between polls while the server reports a
	// pending update.
	UpdateDelay time.Duration
	// UpdateMaxAttempts bounds the polls of one update cycle.
	UpdateMaxAttempts int
	// SaveReadyDelay is the wait between readiness checks before a save.
	SaveReadyDelay time.Duration
	// SaveReadyMaxAttempts bounds the readiness checks of one save.
	SaveReadyMaxAttempts int
	// ReleasedCacheSize is the number of released records kept for reuse.
	ReleasedCacheSize int
}

// DefaultConfig holds the default polling and cache settings.
var DefaultConfig = Config{
	UpdateDelay:          2 * time.Second,
	UpdateMaxAttempts:    150,
	SaveReadyDelay:       100 * time.Millisecond,
	SaveReadyMaxAttempts: 100,
	ReleasedCacheSize:    256,
}

func (c Config) withDefaults() Config {
	if c.UpdateDelay <= 0 {
		c.UpdateDelay = DefaultConfig.UpdateDelay
	}
	if c.UpdateMaxAttempts <= 0 {
		c.UpdateMaxAttempts = DefaultConfig.UpdateMaxAttempts
	}
	if c.SaveReadyDelay <= 0 {
		c.SaveReadyDelay = DefaultConfig.SaveReadyDelay
	}
	if c.SaveReadyMaxAttempts <= 0 {
		c.SaveReadyMaxAttempts = DefaultConfig.SaveReadyMaxAttempts
	}
	if c.ReleasedCacheSize <= 0 {
		c.ReleasedCacheSize = DefaultConfig.ReleasedCacheSize
	}
	return c
}
