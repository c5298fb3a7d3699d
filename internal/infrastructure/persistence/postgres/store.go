package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// knownTables is the set of tables the store will touch.
var knownTables = map[string]bool{
	backend.TableProfiles:          true,
	backend.TableTasks:             true,
	backend.TableSubjects:          true,
	backend.TableTopics:            true,
	backend.TableSubTopics:         true,
	backend.TableCapacity:          true,
	backend.TableCapacityOverrides: true,
	backend.TableExamModes:         true,
	backend.TableExamModeTasks:     true,
	backend.TableMissedTaskReasons: true,
	backend.TableUserStreaks:       true,
	backend.TableFocusSessions:     true,
	backend.TableHealthReadings:    true,
}

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store implements backend.Store over a pgx pool.
type Store struct {
	conn *Connection
	log  *zap.Logger
}

// NewStore creates a Store.
func NewStore(conn *Connection, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{conn: conn, log: log.With(logger.Component("postgres"))}
}

// Select implements backend.Store.
func (s *Store) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	op := "select " + q.Table

	start := time.Now()
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, tagError(op, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, tagError(op, err)
	}
	s.log.Debug("select", logger.Table(q.Table), zap.Int("rows", len(maps)), logger.Latency(time.Since(start)))

	out := make([]backend.Row, len(maps))
	for i, m := range maps {
		out[i] = backend.Row(m)
	}
	return out, nil
}

// Insert implements backend.Store.
func (s *Store) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	sql, args, err := buildInsert(table, row)
	if err != nil {
		return nil, err
	}
	return s.returningOne(ctx, "insert "+table, sql, args)
}

// Update implements backend.Store.
func (s *Store) Update(ctx context.Context, table string, where []backend.Cond, set backend.Row) (backend.Row, error) {
	sql, args, err := buildUpdate(table, where, set)
	if err != nil {
		return nil, err
	}
	return s.returningOne(ctx, "update "+table, sql, args)
}

// Count implements backend.Store.
func (s *Store) Count(ctx context.Context, table string, where []backend.Cond) (int, error) {
	sql, args, err := buildCount(table, where)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.conn.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, tagError("count "+table, err)
	}
	return int(n), nil
}

func (s *Store) returningOne(ctx context.Context, op, sql string, args []any) (backend.Row, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, tagError(op, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, tagError(op, err)
	}
	if len(maps) == 0 {
		return nil, shared.WrapError("postgres", op, shared.ErrNotFound, "no rows matched", nil)
	}
	return backend.Row(maps[0]), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SQL BUILDER
// ══════════════════════════════════════════════════════════════════════════════

type builder struct {
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func checkTable(table string) error {
	if !knownTables[table] {
		return shared.InvalidField("query", "table", "unknown table "+table)
	}
	return nil
}

func ident(column string) (string, error) {
	if !columnPattern.MatchString(column) {
		return "", shared.InvalidField("query", "column", "invalid column name "+column)
	}
	return pgx.Identifier{column}.Sanitize(), nil
}

func (b *builder) where(conds []backend.Cond) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		col, err := ident(c.Column)
		if err != nil {
			return "", err
		}

		var part string
		switch c.Op {
		case backend.OpEq:
			part = col + " = " + b.bind(c.Value)
		case backend.OpNeq:
			part = col + " <> " + b.bind(c.Value)
		case backend.OpLt:
			part = col + " < " + b.bind(c.Value)
		case backend.OpLte:
			part = col + " <= " + b.bind(c.Value)
		case backend.OpGt:
			part = col + " > " + b.bind(c.Value)
		case backend.OpGte:
			part = col + " >= " + b.bind(c.Value)
		case backend.OpIn:
			values, _ := c.Value.([]any)
			if len(values) == 0 {
				part = "FALSE"
			} else {
				part = col + " = ANY(" + b.bind(listArg(values)) + ")"
			}
		case backend.OpIsNull:
			if null, _ := c.Value.(bool); null {
				part = col + " IS NULL"
			} else {
				part = col + " IS NOT NULL"
			}
		default:
			return "", shared.InvalidField("query", "op", "unsupported operator "+string(c.Op))
		}
		parts = append(parts, part)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

// listArg turns a homogeneous string list into []string so pgx can encode
// it as a text array.
func listArg(values []any) any {
	strs := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return values
		}
		strs = append(strs, s)
	}
	return strs
}

func buildSelect(q backend.Query) (string, []any, error) {
	if err := checkTable(q.Table); err != nil {
		return "", nil, err
	}

	b := &builder{}
	where, err := b.where(q.Where)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(pgx.Identifier{q.Table}.Sanitize())
	sb.WriteString(where)

	if len(q.OrderBy) > 0 {
		parts := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			col, err := ident(o.Column)
			if err != nil {
				return "", nil, err
			}
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			parts = append(parts, col+dir+" NULLS LAST")
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.bind(q.Limit))
	}

	return sb.String(), b.args, nil
}

// sortedColumns returns the non-nil columns of row in a stable order.
func sortedColumns(row backend.Row) []string {
	cols := make([]string, 0, len(row))
	for k, v := range row {
		if v == nil {
			continue
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func buildInsert(table string, row backend.Row) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}

	cols := sortedColumns(row)
	if id, ok := row["id"].(string); ok && id == "" {
		cols = removeColumn(cols, "id")
	}
	if len(cols) == 0 {
		return "", nil, shared.InvalidField("insert "+table, "row", "row has no columns")
	}

	b := &builder{}
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		col, err := ident(c)
		if err != nil {
			return "", nil, err
		}
		names[i] = col
		params[i] = b.bind(row[c])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(names, ", "),
		strings.Join(params, ", "),
	)
	return sql, b.args, nil
}

func buildUpdate(table string, where []backend.Cond, set backend.Row) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	if len(where) == 0 {
		return "", nil, shared.InvalidField("update "+table, "where", "update without conditions")
	}
	if len(set) == 0 {
		return "", nil, shared.InvalidField("update "+table, "set", "nothing to update")
	}

	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	b := &builder{}
	assignments := make([]string, len(cols))
	for i, c := range cols {
		col, err := ident(c)
		if err != nil {
			return "", nil, err
		}
		assignments[i] = col + " = " + b.bind(set[c])
	}

	whereSQL, err := b.where(where)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(assignments, ", "),
		whereSQL,
	)
	return sql, b.args, nil
}

func buildCount(table string, where []backend.Cond) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}

	b := &builder{}
	whereSQL, err := b.where(where)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize() + whereSQL, b.args, nil
}

func removeColumn(cols []string, name string) []string {
	out := cols[:0]
	for _, c := range cols {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}
