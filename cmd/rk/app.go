package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daviddao/recordkit/pkg/predicate"
	"github.com/daviddao/recordkit/pkg/records"
	"github.com/daviddao/recordkit/pkg/store"
)

const (
	defaultDir = ".recordkit"
	defaultDB  = defaultDir + "/records.db"
)

// app holds shared state for all CLI subcommands.
type app struct {
	store    store.StoreInterface
	registry *records.Registry
	dbPath   string
}

// newApp opens the database and builds the session registry over it.
// Creates the .recordkit/ directory if using the default DB path.
func newApp() (*app, error) {
	dbPath := envOr("RECORDKIT_DB", defaultDB)
	if dbPath == defaultDB {
		if err := os.MkdirAll(defaultDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", defaultDir, err)
		}
	}
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", dbPath, err)
	}
	return newAppWithStore(s, dbPath, records.Config{}), nil
}

func newAppWithStore(s store.StoreInterface, dbPath string, cfg records.Config) *app {
	return &app{
		store:    s,
		registry: records.NewRegistry(s, cfg),
		dbPath:   dbPath,
	}
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// parseAssignments parses att=value arguments. A value is decoded as JSON
// when it is valid JSON and kept as a plain string otherwise.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected att=value, got %q", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[name] = v
	}
	return out, nil
}

// readJSON decodes a JSON file into v. "-" reads stdin.
func readJSON(path string, v any) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(filepath.Clean(path))
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// readColumns loads a column set, or returns nil when path is empty.
func readColumns(path string) ([]predicate.Column, error) {
	if path == "" {
		return nil, nil
	}
	var cols []predicate.Column
	if err := readJSON(path, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// formatValue renders a loaded value for text output.
func formatValue(v any) string {
	switch vv := v.(type) {
	case nil:
		return "(none)"
	case string:
		return vv
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func shortTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
