// Package model defines the wire types shared by the records client and a
// record source.
//
// A record is addressed by an opaque string id of the form "<type>@<local>".
// Its attributes are loaded one path at a time (see package attpath) and
// written back in batches: a MutateRequest carries every changed record of
// one save, and the MutateResponse lists the resulting ids in the same order.
// A record that does not exist yet is sent with a "new" id (see NewID); the
// source assigns the real id and reports it in the response.
package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Attribute names with a meaning of their own.
const (
	// AttModified is the server-side modification stamp of a record.
	AttModified = "cm:modified"
	// AttPendingUpdate is true while the server is still applying an
	// asynchronous change to a record.
	AttPendingUpdate = "pendingUpdate"
	// AttAlias is the implicit attribute of an alias record holding its own id.
	AttAlias = "_alias"
	// AttType is the record type, the part of the id before '@'.
	AttType = "_type"
	// AttID is the record id.
	AttID = "id"
)

// newMarker prefixes the local part of ids of records that were never saved.
const newMarker = "new-"

// RecordAtts is one record of a mutate request or response.
type RecordAtts struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// MutateRequest is a batch of record changes applied atomically.
type MutateRequest struct {
	Records []RecordAtts `json:"records"`
}

// MutateResponse lists the ids of the mutated records, in request order.
type MutateResponse struct {
	Records []RecordAtts `json:"records"`
}

// Record is a stored record as kept by a record source.
type Record struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Modified      time.Time      `json:"modified"`
	PendingUpdate bool           `json:"pending_update"`
	CreatedAt     time.Time      `json:"created_at"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// NewID returns a fresh id for a record of type typ that does not exist yet.
func NewID(typ string) string {
	return typ + "@" + newMarker + strings.ToLower(ulid.Make().String())
}

// IsNewID reports whether id names a record that was never saved: the local
// part is empty or was built by NewID.
func IsNewID(id string) bool {
	i := strings.IndexByte(id, '@')
	if i < 0 {
		return id == ""
	}
	local := id[i+1:]
	return local == "" || strings.HasPrefix(local, newMarker)
}

// TypeOf returns the type part of id, or "" when id has none.
func TypeOf(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return ""
}

// AssignID returns the id a source gives to a new record of type typ.
func AssignID(typ string) string {
	return typ + "@" + strings.ToLower(ulid.Make().String())
}
