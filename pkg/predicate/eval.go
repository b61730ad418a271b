package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// Getter returns the value of an attribute of the record being matched.
type Getter func(att string) any

// Match evaluates p against one record. Empty combinators match everything;
// a nil predicate matches everything.
func Match(p *Predicate, get Getter, now time.Time) bool {
	if p == nil {
		return true
	}
	switch p.T {
	case OpAnd:
		for _, c := range p.Sub {
			if !Match(c, get, now) {
				return false
			}
		}
		return true
	case OpOr:
		if len(p.Sub) == 0 {
			return true
		}
		for _, c := range p.Sub {
			if Match(c, get, now) {
				return true
			}
		}
		return false
	case OpNot:
		if len(p.Sub) == 0 {
			return true
		}
		return !Match(p.Sub[0], get, now)
	}
	if _, ok := EqualPredicatesMap[p.T]; ok || p.T == OpTimeInterval {
		p = ReplacePredicateType(p)
	}
	return matchLeaf(p, get(p.Att), now)
}

func matchLeaf(p *Predicate, v any, now time.Time) bool {
	switch p.T {
	case OpEmpty:
		return isEmptyVal(v)
	case OpNotEmpty:
		return !isEmptyVal(v)
	case OpNotEq:
		return !anyOf(v, func(x any) bool { return anyWanted(p.Val, x, equalValues) })
	case OpNotContains:
		return !anyOf(v, func(x any) bool { return anyWanted(p.Val, x, containsValue) })
	}
	return anyOf(v, func(x any) bool {
		switch p.T {
		case OpEq, OpIn:
			return anyWanted(p.Val, x, equalValues)
		case OpContains:
			return anyWanted(p.Val, x, containsValue)
		case OpStarts:
			return strings.HasPrefix(strings.ToLower(toString(x)), strings.ToLower(toString(p.Val)))
		case OpEnds:
			return strings.HasSuffix(strings.ToLower(toString(x)), strings.ToLower(toString(p.Val)))
		case OpGt:
			return compareValues(x, p.Val) > 0
		case OpGe:
			return compareValues(x, p.Val) >= 0
		case OpLt:
			return compareValues(x, p.Val) < 0
		case OpLe:
			return compareValues(x, p.Val) <= 0
		case OpTimeInterval:
			return inInterval(x, toString(p.Val), now)
		}
		return false
	})
}

// anyOf applies fn to v, or to each element when v is a list.
func anyOf(v any, fn func(x any) bool) bool {
	switch vv := v.(type) {
	case []any:
		for _, x := range vv {
			if fn(x) {
				return true
			}
		}
		return false
	case []string:
		for _, x := range vv {
			if fn(x) {
				return true
			}
		}
		return false
	}
	return fn(v)
}

// anyWanted compares x with want, or with each element of a list want.
func anyWanted(want, x any, cmp func(x, want any) bool) bool {
	return anyOf(want, func(w any) bool { return cmp(x, w) })
}

func equalValues(x, want any) bool {
	if xf, ok := toFloat(x); ok {
		if wf, ok := toFloat(want); ok {
			return xf == wf
		}
	}
	return toString(x) == toString(want)
}

func containsValue(x, want any) bool {
	return strings.Contains(strings.ToLower(toString(x)), strings.ToLower(toString(want)))
}

func compareValues(x, want any) int {
	if xf, ok := toFloat(x); ok {
		if wf, ok := toFloat(want); ok {
			switch {
			case xf < wf:
				return -1
			case xf > wf:
				return 1
			}
			return 0
		}
	}
	if xt, ok := parseTime(toString(x)); ok {
		if wt, ok := parseTime(toString(want)); ok {
			return xt.Compare(wt)
		}
	}
	return strings.Compare(toString(x), toString(want))
}

func toString(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case string:
		f, err := strconv.ParseFloat(vv, 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// inInterval reports whether x lies in the interval "from/to". A single
// $TODAY bound covers the current day.
func inInterval(x any, interval string, now time.Time) bool {
	t, ok := parseTime(toString(x))
	if !ok {
		return false
	}
	from, to, ok := parseInterval(interval, now)
	if !ok {
		return false
	}
	return !t.Before(from) && !t.After(to)
}

func parseInterval(interval string, now time.Time) (from, to time.Time, ok bool) {
	lo, hi, found := strings.Cut(interval, TimeIntervalDelimiter)
	if !found {
		if interval != DatePredicateVariables.Today {
			return from, to, false
		}
		day := startOfDay(now)
		return day, day.Add(24*time.Hour - time.Nanosecond), true
	}
	if from, ok = resolveBound(lo, now); !ok {
		return from, to, false
	}
	if to, ok = resolveBound(hi, now); !ok {
		return from, to, false
	}
	if hi == DatePredicateVariables.Today {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, true
}

func resolveBound(s string, now time.Time) (time.Time, bool) {
	switch s {
	case DatePredicateVariables.Now:
		return now, true
	case DatePredicateVariables.Today:
		return startOfDay(now), true
	}
	if t, ok := parseTime(s); ok {
		return t, true
	}
	return addDuration(now, s)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addDuration adds an ISO 8601 duration such as -P1D or PT12H to t. Date
// parts move the calendar, clock parts add elapsed time.
func addDuration(t time.Time, s string) (time.Time, bool) {
	d, err := duration.Parse(strings.TrimPrefix(s, "+"))
	if err != nil {
		return t, false
	}
	sign := 1
	if d.Negative {
		sign = -1
	}
	t = t.AddDate(sign*int(d.Years), sign*int(d.Months), sign*(7*int(d.Weeks)+int(d.Days)))
	clock := time.Duration(d.Hours*float64(time.Hour) + d.Minutes*float64(time.Minute) + d.Seconds*float64(time.Second))
	return t.Add(time.Duration(sign) * clock), true
}
