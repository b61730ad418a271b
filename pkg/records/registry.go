package records

import (
	"strings"
	"sync"

	"github.com/golang/glog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"

	"github.com/daviddao/recordkit/pkg/attpath"
	"github.com/daviddao/recordkit/pkg/model"
)

const aliasPrefix = "alias-"

// Registry keeps at most one live Record per id for one session.
//
// Records obtained with Get or Create live as long as the registry. Records
// obtained with GetOwned are reference counted per owner; once every owner
// released them they are parked in a bounded cache, so a quick Get for the
// same id returns the same instance.
type Registry struct {
	source Source
	cfg    Config

	mu       sync.Mutex
	records  map[string]*entry
	released *lru.Cache[string, *Record]
}

type entry struct {
	rec    *Record
	owners map[string]int
	pinned bool
}

// NewRegistry returns a registry loading and saving through source.
func NewRegistry(source Source, cfg Config) *Registry {
	cfg = cfg.withDefaults()
	released, err := lru.New[string, *Record](cfg.ReleasedCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Registry{
		source:   source,
		cfg:      cfg,
		records:  map[string]*entry{},
		released: released,
	}
}

// Config returns the effective configuration.
func (g *Registry) Config() Config { return g.cfg }

// Get returns the record for id, creating it on first use.
func (g *Registry) Get(id string) *Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entryLocked(id)
	e.pinned = true
	return e.rec
}

// GetOwned returns the record for id and counts a reference held by owner.
func (g *Registry) GetOwned(id, owner string) *Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entryLocked(id)
	if e.owners == nil {
		e.owners = map[string]int{}
	}
	e.owners[owner]++
	return e.rec
}

func (g *Registry) entryLocked(id string) *entry {
	if e, ok := g.records[id]; ok {
		return e
	}
	rec, ok := g.released.Get(id)
	if ok {
		g.released.Remove(id)
	} else {
		rec = newRecord(id, g, nil)
	}
	e := &entry{rec: rec}
	g.records[id] = e
	return e
}

// ReleaseAll drops every reference held by owner and returns the number of
// records that are no longer referenced.
func (g *Registry) ReleaseAll(owner string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, e := range g.records {
		if _, ok := e.owners[owner]; !ok {
			continue
		}
		delete(e.owners, owner)
		if len(e.owners) > 0 || e.pinned {
			continue
		}
		delete(g.records, id)
		if e.rec.base == nil {
			g.released.Add(id, e.rec)
		}
		n++
	}
	if glog.V(2) {
		glog.Infof("[registry]release %s: %d records\n", owner, n)
	}
	return n
}

// Len returns the number of live records.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// lookup returns a live or parked record without creating one.
func (g *Registry) lookup(id string) (*Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.records[id]; ok {
		return e.rec, true
	}
	return g.released.Peek(id)
}

// Create returns a new unsaved record of the given type.
func (g *Registry) Create(typ string) *Record {
	return g.Get(model.NewID(typ))
}

// Alias returns a new alias record over base. Attribute loads of the alias
// go to the base record id; values set on the alias stay on the alias until
// it is saved.
func (g *Registry) Alias(base *Record) *Record {
	id := aliasPrefix + strings.ToLower(ulid.Make().String())
	rec := newRecord(id, g, base)
	rec.attribute(model.AttAlias).SetValue(attpath.DefaultInner, id)
	g.mu.Lock()
	g.records[id] = &entry{rec: rec, pinned: true}
	g.mu.Unlock()
	return rec
}
