package session

import (
	"fmt"
	"regexp"
	"strings"
)

// Row is a table row keyed by column name.
type Row map[string]any

// Op is a comparison operator usable in a Cond.
type Op string

const (
	OpEq   Op = "="
	OpNeq  Op = "<>"
	OpGt   Op = ">"
	OpGte  Op = ">="
	OpLt   Op = "<"
	OpLte  Op = "<="
	OpLike Op = "LIKE"

	// OpContains matches a literal, case-sensitive substring. Wildcard
	// characters in the value are not interpreted.
	OpContains Op = "CONTAINS"
)

// Cond is a single column predicate. Conditions of a query are AND-ed.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, v any) Cond { return Cond{Column: column, Op: OpEq, Value: v} }
func Neq(column string, v any) Cond { return Cond{Column: column, Op: OpNeq, Value: v} }
func Gt(column string, v any) Cond { return Cond{Column: column, Op: OpGt, Value: v} }
func Gte(column string, v any) Cond { return Cond{Column: column, Op: OpGte, Value: v} }
func Lt(column string, v any) Cond { return Cond{Column: column, Op: OpLt, Value: v} }
func Lte(column string, v any) Cond { return Cond{Column: column, Op: OpLte, Value: v} }
func Like(column, pattern string) Cond { return Cond{Column: column, Op: OpLike, Value: pattern} }
func Contains(column, substr string) Cond {
	return Cond{Column: column, Op: OpContains, Value: substr}
}

// Query describes a tenant-scoped select.
type Query struct {
	Where []Cond

	// OrderBy entries are "column" or "column ASC|DESC".
	OrderBy []string

	// Limit of zero means no limit.
	Limit  int
	Offset int
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: identifier %q", ErrInvalidQuery, name)
	}
	return nil
}

func validOp(op Op) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpContains:
		return true
	}
	return false
}

func orderClause(order []string) (string, error) {
	if len(order) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(order))
	for _, o := range order {
		fields := strings.Fields(o)
		if len(fields) == 0 || len(fields) > 2 {
			return "", fmt.Errorf("%w: order %q", ErrInvalidQuery, o)
		}
		if err := validIdent(fields[0]); err != nil {
			return "", err
		}
		dir := "ASC"
		if len(fields) == 2 {
			dir = strings.ToUpper(fields[1])
			if dir != "ASC" && dir != "DESC" {
				return "", fmt.Errorf("%w: order direction %q", ErrInvalidQuery, fields[1])
			}
		}
		parts = append(parts, fields[0]+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
