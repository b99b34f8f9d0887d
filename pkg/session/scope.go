package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dmitrymomot/tenantcore/pkg/pool"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

const (
	// TenantColumn is the ownership column every tenant-scoped table carries.
	TenantColumn = "tenant_id"

	// IDColumn is the primary key column used by Get, Update and Delete.
	IDColumn = "id"
)

// Scope is a transactional unit of work bound to one tenant. Every helper
// adds the tenant predicate and rejects rows, values and filters that belong
// to another tenant with ErrPermissionDenied.
//
// A Scope is owned by a single goroutine and is valid only inside the
// function passed to Manager.Run.
type Scope struct {
	tenant  tenant.ID
	mode    tenant.IsolationMode
	tx      *sql.Tx
	dialect pool.Dialect
	closed  atomic.Bool
	hooks   []func(ctx context.Context, committed bool)
}

// AfterCompletion registers fn to run once the unit of work has ended and its
// connection is back in the pool, whatever the outcome. Hooks run in
// registration order with a context that is no longer cancellable; work they
// do through the Manager happens in a separate transaction.
func (s *Scope) AfterCompletion(fn func(ctx context.Context, committed bool)) {
	s.hooks = append(s.hooks, fn)
}

// Tenant returns the tenant the scope was opened for.
func (s *Scope) Tenant() tenant.ID { return s.tenant }

// Mode returns the isolation mode of the pool behind the scope.
func (s *Scope) Mode() tenant.IsolationMode { return s.mode }

// Dialect returns the SQL dialect of the backing store.
func (s *Scope) Dialect() pool.Dialect { return s.dialect }

// Get returns the row with the given id.
func (s *Scope) Get(ctx context.Context, table string, id any) (Row, error) {
	if err := s.usable(table); err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s AND %s = %s",
		table, IDColumn, s.ph(1), TenantColumn, s.ph(2))
	rows, err := s.query(ctx, q, id, s.tenant.String())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, s.missing(ctx, table, id)
	}
	return rows[0], nil
}

// Find returns the rows matching q.
func (s *Scope) Find(ctx context.Context, table string, q Query) ([]Row, error) {
	if err := s.usable(table); err != nil {
		return nil, err
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}

	where, args, err := s.where(q.Where)
	if err != nil {
		return nil, err
	}
	order, err := orderClause(q.OrderBy)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(table)
	sb.WriteString(where)
	sb.WriteString(order)
	switch {
	case q.Limit > 0:
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	case q.Offset > 0 && s.dialect.Name() == "sqlite3":
		// SQLite only accepts OFFSET after a LIMIT clause.
		sb.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}

	return s.query(ctx, sb.String(), args...)
}

// Count returns the number of rows matching the conditions.
func (s *Scope) Count(ctx context.Context, table string, conds ...Cond) (int64, error) {
	if err := s.usable(table); err != nil {
		return 0, err
	}
	where, args, err := s.where(conds)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// GroupCount counts the rows matching the conditions per distinct value of column.
// NULL values are counted under the empty key.
func (s *Scope) GroupCount(ctx context.Context, table, column string, conds ...Cond) (map[string]int64, error) {
	if err := s.usable(table); err != nil {
		return nil, err
	}
	if err := validIdent(column); err != nil {
		return nil, err
	}
	where, args, err := s.where(conds)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s", column, table, where, column)
	rows, err := s.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("group count %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key sql.NullString
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("group count %s.%s: %w", table, column, err)
		}
		out[key.String] += n
	}
	return out, rows.Err()
}

// Insert writes a row owned by the scope's tenant. A missing tenant column is
// filled in; a foreign one is rejected.
func (s *Scope) Insert(ctx context.Context, table string, values Row) error {
	if err := s.usable(table); err != nil {
		return err
	}
	if err := s.ownValues(values); err != nil {
		return err
	}

	row := maps.Clone(values)
	if row == nil {
		row = Row{}
	}
	row[TenantColumn] = s.tenant.String()

	cols := slices.Sorted(maps.Keys(row))
	phs := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		if err := validIdent(c); err != nil {
			return err
		}
		phs[i] = s.ph(i + 1)
		args[i] = row[c]
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := s.tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update sets the given columns on the row with the given id.
func (s *Scope) Update(ctx context.Context, table string, id any, values Row) error {
	if err := s.usable(table); err != nil {
		return err
	}
	if err := s.ownValues(values); err != nil {
		return err
	}

	cols := slices.Sorted(maps.Keys(values))
	cols = slices.DeleteFunc(cols, func(c string) bool { return c == TenantColumn || c == IDColumn })
	if len(cols) == 0 {
		return fmt.Errorf("%w: update %s without columns", ErrInvalidQuery, table)
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		if err := validIdent(c); err != nil {
			return err
		}
		sets[i] = c + " = " + s.ph(i+1)
		args = append(args, values[c])
	}
	n := len(args)
	args = append(args, id, s.tenant.String())

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s AND %s = %s",
		table, strings.Join(sets, ", "), IDColumn, s.ph(n+1), TenantColumn, s.ph(n+2))
	return s.execOne(ctx, q, table, id, args...)
}

// Delete removes the row with the given id.
func (s *Scope) Delete(ctx context.Context, table string, id any) error {
	if err := s.usable(table); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		table, IDColumn, s.ph(1), TenantColumn, s.ph(2))
	return s.execOne(ctx, q, table, id, id, s.tenant.String())
}

func (s *Scope) execOne(ctx context.Context, q, table string, id any, args ...any) error {
	res, err := s.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	if n == 0 {
		return s.missing(ctx, table, id)
	}
	return nil
}

// missing tells a row owned by another tenant apart from an absent one.
func (s *Scope) missing(ctx context.Context, table string, id any) error {
	var owner sql.NullString
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", TenantColumn, table, IDColumn, s.ph(1))
	err := s.tx.QueryRowContext(ctx, q, id).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s %v", ErrNotFound, table, id)
	case err != nil:
		return fmt.Errorf("lookup %s: %w", table, err)
	default:
		return fmt.Errorf("%w: %s %v", ErrPermissionDenied, table, id)
	}
}

func (s *Scope) where(conds []Cond) (string, []any, error) {
	clauses := []string{TenantColumn + " = " + s.ph(1)}
	args := []any{s.tenant.String()}

	for _, c := range conds {
		if err := validIdent(c.Column); err != nil {
			return "", nil, err
		}
		if !validOp(c.Op) {
			return "", nil, fmt.Errorf("%w: operator %q", ErrInvalidQuery, c.Op)
		}
		if c.Column == TenantColumn {
			if c.Op == OpEq && fmt.Sprint(c.Value) == s.tenant.String() {
				continue
			}
			return "", nil, fmt.Errorf("%w: filter on %s", ErrPermissionDenied, TenantColumn)
		}
		args = append(args, c.Value)
		clauses = append(clauses, s.predicate(c, s.ph(len(args))))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (s *Scope) predicate(c Cond, ph string) string {
	if c.Op != OpContains {
		return fmt.Sprintf("%s %s %s", c.Column, c.Op, ph)
	}
	if s.dialect.Name() == "sqlite3" {
		return fmt.Sprintf("instr(%s, %s) > 0", c.Column, ph)
	}
	return fmt.Sprintf("strpos(%s, %s) > 0", c.Column, ph)
}

func (s *Scope) ownValues(values Row) error {
	v, ok := values[TenantColumn]
	if !ok || v == nil || fmt.Sprint(v) == s.tenant.String() {
		return nil
	}
	return fmt.Errorf("%w: value for %s", ErrPermissionDenied, TenantColumn)
}

func (s *Scope) query(ctx context.Context, q string, args ...any) ([]Row, error) {
	rows, err := s.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}

		// A row leaking through a missing or broken filter is a hard error.
		if owner, ok := row[TenantColumn]; ok && fmt.Sprint(owner) != s.tenant.String() {
			return nil, fmt.Errorf("%w: row of another tenant returned", ErrPermissionDenied)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Scope) usable(table string) error {
	if s.closed.Load() {
		return ErrScopeClosed
	}
	return validIdent(table)
}

func (s *Scope) ph(n int) string { return s.dialect.Placeholder(n) }
