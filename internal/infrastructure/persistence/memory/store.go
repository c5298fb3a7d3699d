// Package memory provides an in-process backend.Store. It backs tests and
// the planner CLI when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// keyColumns lists tables whose primary key is not "id".
var keyColumns = map[string]string{
	backend.TableProfiles:    "user_id",
	backend.TableCapacity:    "user_id",
	backend.TableUserStreaks: "user_id",
}

// FailFunc decides whether an operation should fail. op is one of
// "select", "insert", "update", "count".
type FailFunc func(op, table string) error

// Store is a map-backed backend.Store.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]backend.Row
	fail   FailFunc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string][]backend.Row)}
}

// FailWith installs a failure hook. Pass nil to clear it.
func (s *Store) FailWith(fn FailFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

// Offline makes every operation fail with a network error until cleared.
func (s *Store) Offline() {
	s.FailWith(func(op, table string) error {
		return shared.NetworkError(op+" "+table, fmt.Errorf("connection refused"))
	})
}

// Online clears any failure hook.
func (s *Store) Online() {
	s.FailWith(nil)
}

// Seed inserts rows without hooks or key generation.
func (s *Store) Seed(table string, rows ...backend.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], r.Clone())
	}
}

// Rows returns a copy of every row in table.
func (s *Store) Rows(table string) []backend.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]backend.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, r.Clone())
	}
	return out
}

func (s *Store) check(op, table string) error {
	if s.fail == nil {
		return nil
	}
	return s.fail(op, table)
}

// Select implements backend.Store.
func (s *Store) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("select", q.Table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, shared.NetworkError("select "+q.Table, err)
	}

	var out []backend.Row
	for _, r := range s.tables[q.Table] {
		if matchAll(r, q.Where) {
			out = append(out, r.Clone())
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareNullsLast(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Insert implements backend.Store.
func (s *Store) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("insert", table); err != nil {
		return nil, err
	}

	r := row.Clone()
	key := "id"
	if k, ok := keyColumns[table]; ok {
		key = k
	}
	if r[key] == nil || r.String(key) == "" {
		if key != "id" {
			return nil, shared.InvalidField("insert "+table, key, key+" is required")
		}
		r["id"] = uuid.NewString()
	}
	for _, existing := range s.tables[table] {
		if existing.String(key) == r.String(key) {
			return nil, shared.DatabaseError("insert "+table,
				fmt.Errorf("duplicate key value violates unique constraint on %s.%s", table, key))
		}
	}
	if _, ok := r["created_at"]; !ok && table != backend.TableCapacity {
		r["created_at"] = time.Now().UTC()
	}

	s.tables[table] = append(s.tables[table], r)
	return r.Clone(), nil
}

// Update implements backend.Store.
func (s *Store) Update(ctx context.Context, table string, where []backend.Cond, set backend.Row) (backend.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("update", table); err != nil {
		return nil, err
	}

	var first backend.Row
	for i, r := range s.tables[table] {
		if !matchAll(r, where) {
			continue
		}
		for k, v := range set {
			r[k] = v
		}
		s.tables[table][i] = r
		if first == nil {
			first = r.Clone()
		}
	}
	if first == nil {
		return nil, shared.WrapError("backend", "Update", shared.ErrNotFound, "no rows matched in "+table, nil)
	}
	return first, nil
}

// Count implements backend.Store.
func (s *Store) Count(ctx context.Context, table string, where []backend.Cond) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("count", table); err != nil {
		return 0, err
	}

	n := 0
	for _, r := range s.tables[table] {
		if matchAll(r, where) {
			n++
		}
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FILTERS
// ══════════════════════════════════════════════════════════════════════════════

func matchAll(r backend.Row, where []backend.Cond) bool {
	for _, c := range where {
		if !match(r, c) {
			return false
		}
	}
	return true
}

func match(r backend.Row, c backend.Cond) bool {
	v, present := r[c.Column]
	if !present {
		v = nil
	}

	switch c.Op {
	case backend.OpIsNull:
		wantNull, _ := c.Value.(bool)
		return (v == nil) == wantNull
	case backend.OpIn:
		values, _ := c.Value.([]any)
		for _, candidate := range values {
			if cmp, ok := compare(v, candidate); ok && cmp == 0 {
				return true
			}
		}
		return false
	}

	// SQL semantics: comparisons with NULL are never true.
	if v == nil || c.Value == nil {
		return false
	}
	cmp, ok := compare(v, c.Value)
	if !ok {
		return false
	}

	switch c.Op {
	case backend.OpEq:
		return cmp == 0
	case backend.OpNeq:
		return cmp != 0
	case backend.OpLt:
		return cmp < 0
	case backend.OpLte:
		return cmp <= 0
	case backend.OpGt:
		return cmp > 0
	case backend.OpGte:
		return cmp >= 0
	}
	return false
}

func compareNullsLast(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, _ := compare(a, b)
	return c
}

// compare orders two column values. Numbers compare numerically, times and
// date strings chronologically, bools by equality, everything else as text.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}

	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb), true
		}
	}

	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if ba == bb {
			return 0, true
		}
		if !ba {
			return -1, true
		}
		return 1, true
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		if len(t) < len(timeutil.FormatDate) {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := timeutil.ParseDate(t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
