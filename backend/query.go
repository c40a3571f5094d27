package backend

import (
	"fmt"

	postgrest "github.com/supabase-community/postgrest-go"
)

// Filter operators understood by applyFilters.
const (
	OpEq    = "eq"
	OpNeq   = "neq"
	OpGt    = "gt"
	OpGte   = "gte"
	OpLt    = "lt"
	OpLte   = "lte"
	OpLike  = "like"
	OpIlike = "ilike"
	OpIs    = "is"
	OpNotIs = "not.is"
)

// Filter is one column predicate.
type Filter struct {
	Column string
	Op     string
	Value  string
}

func Eq(column, value string) Filter    { return Filter{column, OpEq, value} }
func Neq(column, value string) Filter   { return Filter{column, OpNeq, value} }
func Gt(column, value string) Filter    { return Filter{column, OpGt, value} }
func Gte(column, value string) Filter   { return Filter{column, OpGte, value} }
func Lt(column, value string) Filter    { return Filter{column, OpLt, value} }
func Lte(column, value string) Filter   { return Filter{column, OpLte, value} }
func Ilike(column, value string) Filter { return Filter{column, OpIlike, value} }
func IsNull(column string) Filter       { return Filter{column, OpIs, "null"} }
func NotNull(column string) Filter      { return Filter{column, OpNotIs, "null"} }

// Query describes a row selection. The REST layer keys filters by column, so a
// column may appear in at most one filter.
type Query struct {
	Table     string
	Columns   string // comma separated projection, "*" when empty
	Filters   []Filter
	OrderBy   string
	Ascending bool
	Limit     int
}

func (q Query) columns() string {
	if q.Columns == "" {
		return "*"
	}
	return q.Columns
}

func applyFilters(fb *postgrest.FilterBuilder, filters []Filter) (*postgrest.FilterBuilder, error) {
	seen := make(map[string]bool, len(filters))
	for _, f := range filters {
		if f.Column == "" {
			return nil, fmt.Errorf("filter %q has no column", f.Op)
		}
		if seen[f.Column] {
			return nil, fmt.Errorf("column %s is filtered more than once", f.Column)
		}
		seen[f.Column] = true

		switch f.Op {
		case OpEq:
			fb = fb.Eq(f.Column, f.Value)
		case OpNeq:
			fb = fb.Neq(f.Column, f.Value)
		case OpGt:
			fb = fb.Gt(f.Column, f.Value)
		case OpGte:
			fb = fb.Gte(f.Column, f.Value)
		case OpLt:
			fb = fb.Lt(f.Column, f.Value)
		case OpLte:
			fb = fb.Lte(f.Column, f.Value)
		case OpLike:
			fb = fb.Like(f.Column, f.Value)
		case OpIlike:
			fb = fb.Ilike(f.Column, f.Value)
		case OpIs:
			fb = fb.Is(f.Column, f.Value)
		case OpNotIs:
			fb = fb.Not(f.Column, "is", f.Value)
		default:
			return nil, fmt.Errorf("unsupported filter operator %q on %s", f.Op, f.Column)
		}
	}
	return fb, nil
}
