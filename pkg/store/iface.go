// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. The cmd layer accepts
// StoreInterface instead of *Store, and the records client only needs the
// records.Source subset.
package store

import (
	"context"

	"github.com/daviddao/recordkit/pkg/model"
	"github.com/daviddao/recordkit/pkg/predicate"
	"github.com/daviddao/recordkit/pkg/records"
)

// StoreInterface defines the full set of store operations.
// The concrete *Store type implements this interface.
type StoreInterface interface {
	records.Source

	// Close closes the database connection.
	Close() error

	// SetPendingUpdate marks a record as being changed asynchronously.
	SetPendingUpdate(id string, pending bool) error

	// GetRecord retrieves a record with its attributes.
	GetRecord(id string) (*model.Record, error)

	// ListRecords returns records of one type, or all when typ is empty.
	ListRecords(typ string, limit int) ([]model.Record, error)

	// CountRecords returns the number of stored records.
	CountRecords() int64

	// Query returns records matching a predicate tree.
	Query(ctx context.Context, pred *predicate.Predicate, limit int) ([]model.Record, error)
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
