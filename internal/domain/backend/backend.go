// Package backend defines the generic CRUD contract the engine uses to reach
// the relational store. Rows are untyped column maps; domain packages decode
// them into their own types.
package backend

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// Table names.
const (
	TableProfiles          = "profiles"
	TableTasks             = "tasks"
	TableSubjects          = "subjects"
	TableTopics            = "topics"
	TableSubTopics         = "sub_topics"
	TableCapacity          = "capacity"
	TableCapacityOverrides = "capacity_overrides"
	TableExamModes         = "exam_modes"
	TableExamModeTasks     = "exam_mode_tasks"
	TableMissedTaskReasons = "missed_task_reasons"
	TableUserStreaks       = "user_streaks"
	TableFocusSessions     = "focus_sessions"
	TableHealthReadings    = "health_readings"
)

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpIn     Op = "in"
	OpIsNull Op = "is_null"
)

// Cond is a single column filter. Conditions in a slice are ANDed.
// For OpIn, Value is a []any. For OpIsNull, Value is a bool (true = IS NULL).
type Cond struct {
	Column string `json:"column" cbor:"column"`
	Op     Op     `json:"op" cbor:"op"`
	Value  any    `json:"value,omitempty" cbor:"value,omitempty"`
}

// Eq is shorthand for an equality condition.
func Eq(column string, value any) Cond { return Cond{Column: column, Op: OpEq, Value: value} }

// Lt is shorthand for a less-than condition.
func Lt(column string, value any) Cond { return Cond{Column: column, Op: OpLt, Value: value} }

// Gte is shorthand for a greater-or-equal condition.
func Gte(column string, value any) Cond { return Cond{Column: column, Op: OpGte, Value: value} }

// Lte is shorthand for a less-or-equal condition.
func Lte(column string, value any) Cond { return Cond{Column: column, Op: OpLte, Value: value} }

// In is shorthand for a membership condition.
func In(column string, values ...any) Cond { return Cond{Column: column, Op: OpIn, Value: values} }

// IsNull matches rows where column is NULL (or NOT NULL when null is false).
func IsNull(column string, null bool) Cond { return Cond{Column: column, Op: OpIsNull, Value: null} }

// Order sorts a selection.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a selection.
type Query struct {
	Table   string
	Where   []Cond
	OrderBy []Order
	Limit   int
}

// Store is the relational backend.
type Store interface {
	// Select returns the rows matching q.
	Select(ctx context.Context, q Query) ([]Row, error)

	// Insert adds a row and returns it as stored (generated columns filled).
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update sets the given columns on every row matching where and returns
	// the first updated row. Returns a not-found error when nothing matched.
	Update(ctx context.Context, table string, where []Cond, set Row) (Row, error)

	// Count returns the number of rows matching where.
	Count(ctx context.Context, table string, where []Cond) (int, error)
}

// WriteOp is the kind of a deferred write.
type WriteOp string

const (
	WriteInsert WriteOp = "insert"
	WriteUpdate WriteOp = "update"
)

// Write is a mutation that can be applied now or replayed later from the
// sync queue. It must serialize with both JSON and CBOR.
type Write struct {
	Op    WriteOp `json:"op" cbor:"op"`
	Table string  `json:"table" cbor:"table"`
	Where []Cond  `json:"where,omitempty" cbor:"where,omitempty"`
	Row   Row     `json:"row" cbor:"row"`
}

// InsertWrite builds an insert.
func InsertWrite(table string, row Row) Write {
	return Write{Op: WriteInsert, Table: table, Row: row}
}

// UpdateWrite builds an update.
func UpdateWrite(table string, where []Cond, set Row) Write {
	return Write{Op: WriteUpdate, Table: table, Where: where, Row: set}
}

// Apply executes w against store.
func Apply(ctx context.Context, store Store, w Write) error {
	_, err := ApplyRow(ctx, store, w)
	return err
}

// ApplyRow executes w and returns the stored row.
func ApplyRow(ctx context.Context, store Store, w Write) (Row, error) {
	switch w.Op {
	case WriteInsert:
		return store.Insert(ctx, w.Table, w.Row)
	case WriteUpdate:
		return store.Update(ctx, w.Table, w.Where, w.Row)
	default:
		return nil, fmt.Errorf("backend: unknown write op %q", w.Op)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROW
// ══════════════════════════════════════════════════════════════════════════════

// Row is a single record keyed by column name.
type Row map[string]any

// String returns the column as a string, or "" when absent or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case [16]byte:
		return formatUUID(v)
	default:
		return fmt.Sprint(v)
	}
}

// StringPtr returns nil when the column is absent or NULL.
func (r Row) StringPtr(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.String(col)
	return &s
}

// Int returns the column as an int. Values decoded from JSON arrive as
// float64 and from CBOR as uint64; both are accepted.
func (r Row) Int(col string) int {
	switch v := r[col].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return int(math.Round(float64(v)))
	case float64:
		return int(math.Round(v))
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// Float returns the column as a float64.
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Bool returns the column as a bool.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Time returns the column as a time. Strings in RFC 3339 or YYYY-MM-DD form
// are parsed, which covers rows replayed from the queue.
func (r Row) Time(col string) (time.Time, bool) {
	switch v := r[col].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
		if t, err := timeutil.ParseDate(v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimePtr returns nil when the column is absent, NULL, or unparseable.
func (r Row) TimePtr(col string) *time.Time {
	t, ok := r.Time(col)
	if !ok {
		return nil
	}
	return &t
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func formatUUID(b [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
