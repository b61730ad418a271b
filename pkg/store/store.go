// Package store is a SQLite record source for the records client.
//
// Records live in two tables: one row per record with its type and stamps,
// and one row per attribute holding the JSON encoded value. Attribute paths
// are resolved on read, following association ids into other records when a
// path reaches past a reference.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/daviddao/recordkit/pkg/model"
	"github.com/daviddao/recordkit/pkg/predicate"

	_ "modernc.org/sqlite"
)

// ErrRecordNotFound is returned for ids the store does not hold.
var ErrRecordNotFound = errors.New("record not found")

// defaultType is given to new records whose id and attributes name no type.
const defaultType = "record"

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
// All store write operations should use this to handle transient SQLite
// errors (BUSY, LOCKED, IOERR_SHORT_READ) under concurrent access.
func retryOnContention(ctx context.Context, fn func() error) error {
	return retryOp(ctx, defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id             TEXT PRIMARY KEY,
		type           TEXT NOT NULL,
		modified       TEXT NOT NULL,
		pending_update INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_type ON records(type, created_at);

	CREATE TABLE IF NOT EXISTS attributes (
		record_id TEXT NOT NULL REFERENCES records(id),
		name      TEXT NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (record_id, name)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// Mutate applies a batch of record changes in one transaction. Records with
// a new id (see model.IsNewID) are created under an assigned id, and every
// reference to such an id within the batch is rewritten to the assigned one.
// A nil attribute value deletes the attribute. The response lists the final
// ids in request order.
func (s *Store) Mutate(ctx context.Context, req model.MutateRequest) (model.MutateResponse, error) {
	var resp model.MutateResponse
	err := retryOnContention(ctx, func() error {
		var err error
		resp, err = s.mutate(ctx, req)
		return err
	})
	if err != nil {
		return model.MutateResponse{}, fmt.Errorf("mutate: %w", err)
	}
	if glog.V(2) {
		glog.Infof("[store]mutate %d records\n", len(resp.Records))
	}
	return resp, nil
}

func (s *Store) mutate(ctx context.Context, req model.MutateRequest) (model.MutateResponse, error) {
	assigned := map[string]string{}
	final := make([]string, len(req.Records))
	for i, r := range req.Records {
		if !model.IsNewID(r.ID) {
			final[i] = r.ID
			continue
		}
		if id, ok := assigned[r.ID]; ok {
			final[i] = id
			continue
		}
		final[i] = model.AssignID(recordType(r))
		// bare "type@" ids cannot be referenced, each one is its own record
		if model.TypeOf(r.ID)+"@" != r.ID && r.ID != "" {
			assigned[r.ID] = final[i]
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.MutateResponse{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC().Format(time.RFC3339Nano)
	resp := model.MutateResponse{Records: make([]model.RecordAtts, 0, len(req.Records))}
	for i, r := range req.Records {
		id := final[i]
		typ := model.TypeOf(id)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (id, type, modified, pending_update, created_at)
			 VALUES (?, ?, ?, 0, ?)
			 ON CONFLICT(id) DO UPDATE SET modified = excluded.modified`,
			id, typ, now, now,
		); err != nil {
			return model.MutateResponse{}, fmt.Errorf("upsert record %s: %w", id, err)
		}
		for name, v := range r.Attributes {
			if isReserved(name) {
				continue
			}
			if err := setAttribute(ctx, tx, id, name, rewriteRefs(v, assigned)); err != nil {
				return model.MutateResponse{}, err
			}
		}
		resp.Records = append(resp.Records, model.RecordAtts{ID: id})
	}
	if err := tx.Commit(); err != nil {
		return model.MutateResponse{}, fmt.Errorf("commit: %w", err)
	}
	return resp, nil
}

func setAttribute(ctx context.Context, tx *sql.Tx, id, name string, v any) error {
	if v == nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM attributes WHERE record_id = ? AND name = ?`, id, name,
		); err != nil {
			return fmt.Errorf("delete attribute %s.%s: %w", id, name, err)
		}
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode attribute %s.%s: %w", id, name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attributes (record_id, name, value) VALUES (?, ?, ?)
		 ON CONFLICT(record_id, name) DO UPDATE SET value = excluded.value`,
		id, name, string(b),
	); err != nil {
		return fmt.Errorf("set attribute %s.%s: %w", id, name, err)
	}
	return nil
}

// recordType picks the type of a new record: the id prefix, else its _type
// attribute, else defaultType.
func recordType(r model.RecordAtts) string {
	if typ := model.TypeOf(r.ID); typ != "" {
		return typ
	}
	if typ, ok := r.Attributes[model.AttType].(string); ok && typ != "" {
		return typ
	}
	return defaultType
}

// isReserved reports whether name is computed by the store and cannot be
// written.
func isReserved(name string) bool {
	switch name {
	case model.AttID, model.AttType, model.AttModified, model.AttPendingUpdate, model.AttAlias:
		return true
	}
	return false
}

// rewriteRefs replaces strings naming a new record of the batch with the
// assigned id, inside lists and objects too.
func rewriteRefs(v any, assigned map[string]string) any {
	switch vv := v.(type) {
	case string:
		if id, ok := assigned[vv]; ok {
			return id
		}
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, x := range vv {
			out[i] = rewriteRefs(x, assigned)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, x := range vv {
			out[i] = rewriteRefs(x, assigned)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, x := range vv {
			out[k] = rewriteRefs(x, assigned)
		}
		return out
	}
	return v
}

// SetPendingUpdate marks a record as being changed asynchronously, or as
// done. Both transitions stamp the modification time.
func (s *Store) SetPendingUpdate(id string, pending bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(context.Background(), func() error {
		res, err := s.db.Exec(
			`UPDATE records SET pending_update = ?, modified = ? WHERE id = ?`,
			boolInt(pending), now, id,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// GetRecord retrieves a record with all its attributes.
func (s *Store) GetRecord(id string) (*model.Record, error) {
	row := s.db.QueryRow(
		`SELECT id, type, modified, pending_update, created_at FROM records WHERE id = ?`, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if rec.Attributes, err = s.loadAttributes(context.Background(), id); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords returns records of type typ (all types when empty) in creation
// order, with their attributes.
func (s *Store) ListRecords(typ string, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listRecords(context.Background(), typ, limit)
}

// CountRecords returns the number of stored records.
func (s *Store) CountRecords() int64 {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Query returns up to limit records matching pred, in creation order. A nil
// predicate matches every record.
func (s *Store) Query(ctx context.Context, pred *predicate.Predicate, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	all, err := s.listRecords(ctx, "", -1)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var out []model.Record
	for _, rec := range all {
		if !predicate.Match(pred, recordGetter(rec), now) {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func recordGetter(rec model.Record) predicate.Getter {
	return func(att string) any {
		switch att {
		case model.AttID:
			return rec.ID
		case model.AttType:
			return rec.Type
		case model.AttModified:
			return rec.Modified.Format(time.RFC3339Nano)
		case model.AttPendingUpdate:
			return rec.PendingUpdate
		}
		return rec.Attributes[att]
	}
}

func (s *Store) listRecords(ctx context.Context, typ string, limit int) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, modified, pending_update, created_at FROM records
		 WHERE ? = '' OR type = ?
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		typ, typ, limit,
	)
	if err != nil {
		return nil, err
	}
	var recs []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, *rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Attributes, err = s.loadAttributes(ctx, recs[i].ID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var r model.Record
	var modStr, createdStr string
	var pending int
	if err := row.Scan(&r.ID, &r.Type, &modStr, &pending, &createdStr); err != nil {
		return nil, err
	}
	r.PendingUpdate = pending != 0
	var parseErr error
	r.Modified, parseErr = time.Parse(time.RFC3339Nano, modStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse modified time for record %s: %w", r.ID, parseErr)
	}
	r.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse created_at time for record %s: %w", r.ID, parseErr)
	}
	return &r, nil
}

func (s *Store) loadAttributes(ctx context.Context, id string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM attributes WHERE record_id = ? ORDER BY name`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	atts := map[string]any{}
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode attribute %s.%s: %w", id, name, err)
		}
		atts[name] = v
	}
	return atts, rows.Err()
}
