package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/daviddao/recordkit/pkg/attpath"
	"github.com/daviddao/recordkit/pkg/model"
)

// maxPathDepth bounds how many references one path may follow.
const maxPathDepth = 8

// dispAtts are tried in order for the display name of a referenced record.
var dispAtts = []string{"name", "cm:name", "cm:title"}

// LoadAttribute resolves one attribute path of a record.
//
// "#name" returns the stored value of name unchanged. Otherwise the path is
// parsed with attpath and the inner projection applied to the value:
//
//	disp, str   display string; references show the record's name
//	json, raw   the stored value
//	num, bool   numeric and boolean coercions
//	id, assoc   the referenced id
//	a,b / .a,b  an object with one entry per projection
//
// Any other inner projection is a path resolved on the referenced record.
// Lists yield their first element unless the path is multiple. Unknown
// records and attributes resolve to nil.
func (s *Store) LoadAttribute(ctx context.Context, recordID, path string) (any, error) {
	return s.loadPath(ctx, recordID, path, 0)
}

func (s *Store) loadPath(ctx context.Context, id, path string, depth int) (any, error) {
	if depth > maxPathDepth {
		return nil, fmt.Errorf("load %s %q: path deeper than %d references", id, path, maxPathDepth)
	}
	if strings.HasPrefix(path, "#") {
		v, _, err := s.attributeValue(ctx, id, path[1:])
		return v, err
	}
	p := attpath.Parse(path, attpath.DefaultInner)
	if p == nil {
		return nil, nil
	}
	v, found, err := s.attributeValue(ctx, id, p.Name)
	if err != nil || !found {
		return nil, err
	}
	if p.Multiple {
		list := asList(v)
		out := make([]any, 0, len(list))
		for _, x := range list {
			pv, err := s.project(ctx, x, p.Inner, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, pv)
		}
		return out, nil
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, nil
		}
		v = list[0]
	}
	return s.project(ctx, v, p.Inner, depth)
}

// attributeValue returns the value of one attribute and whether the record
// exists.
func (s *Store) attributeValue(ctx context.Context, id, name string) (any, bool, error) {
	var typ, modified string
	var pending int
	err := s.db.QueryRowContext(ctx,
		`SELECT type, modified, pending_update FROM records WHERE id = ?`, id,
	).Scan(&typ, &modified, &pending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load record %s: %w", id, err)
	}
	switch name {
	case model.AttID:
		return id, true, nil
	case model.AttType:
		return typ, true, nil
	case model.AttModified:
		return modified, true, nil
	case model.AttPendingUpdate:
		return pending != 0, true, nil
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM attributes WHERE record_id = ? AND name = ?`, id, name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, true, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("load attribute %s.%s: %w", id, name, err)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, true, fmt.Errorf("decode attribute %s.%s: %w", id, name, err)
	}
	return v, true, nil
}

func (s *Store) project(ctx context.Context, v any, inner string, depth int) (any, error) {
	if v == nil {
		return nil, nil
	}
	if strings.HasPrefix(inner, ".") || (strings.Contains(inner, ",") && !strings.ContainsAny(inner, "{?")) {
		parts := attpath.Path{Inner: inner}.Projections()
		out := make(map[string]any, len(parts))
		for _, part := range parts {
			pv, err := s.project(ctx, v, part, depth)
			if err != nil {
				return nil, err
			}
			out[part] = pv
		}
		return out, nil
	}

	switch inner {
	case "disp":
		if ref, ok := v.(string); ok {
			return s.display(ctx, ref)
		}
		return toString(v), nil
	case "str":
		return toString(v), nil
	case "json", "raw":
		return v, nil
	case "num":
		return toNumber(v), nil
	case "bool":
		return toBool(v), nil
	case "id", "assoc":
		if ref, ok := v.(string); ok {
			return ref, nil
		}
		return nil, nil
	}

	ref, ok := v.(string)
	if !ok {
		return nil, nil
	}
	return s.loadPath(ctx, ref, inner, depth+1)
}

// display returns the name of the record ref, or ref itself when it is not
// a stored record or has no name.
func (s *Store) display(ctx context.Context, ref string) (any, error) {
	if !strings.Contains(ref, "@") {
		return ref, nil
	}
	for _, name := range dispAtts {
		v, found, err := s.attributeValue(ctx, ref, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return ref, nil
		}
		if v != nil {
			return toString(v), nil
		}
	}
	return ref, nil
}

func asList(v any) []any {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		return vv
	}
	return []any{v}
}

func toString(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(vv)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func toNumber(v any) any {
	switch vv := v.(type) {
	case float64:
		return vv
	case bool:
		if vv {
			return 1.0
		}
		return 0.0
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64); err == nil {
			return f
		}
	}
	return nil
}

func toBool(v any) any {
	switch vv := v.(type) {
	case bool:
		return vv
	case float64:
		return vv != 0
	case string:
		if b, err := strconv.ParseBool(vv); err == nil {
			return b
		}
	}
	return nil
}
