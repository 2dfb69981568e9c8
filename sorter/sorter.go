// Package sorter turns user-supplied sort expressions into ORDER BY
// clauses for aggregate root listings. An expression like
// "ref:asc,created_at:desc" names root-table columns; parsed options
// are fed to the repository's List, which orders the root select
// before the aggregates are loaded. Column names are the ones the
// schema package derives from `rel` tags, so MakeForEntity can gate an
// expression against an entity's actual sortable columns.
package sorter

import (
	"slices"
	"strings"

	"github.com/rise-and-shine/aggregate/schema"
)

type (
	// SortOpts is an ordered list of sort options applied left to right.
	SortOpts []Opt

	SortDirection string
)

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// Opt is one ORDER BY term: a root-table column and a direction.
type Opt struct {
	F string
	D SortDirection
}

// ToSQL renders the option as an ORDER BY fragment, e.g. "ref asc".
func (o Opt) ToSQL() string {
	return o.F + " " + string(o.D)
}

// Make builds SortOpts from explicit options, for callers that
// construct the ordering in code rather than parsing it.
func Make(sortOptions ...Opt) SortOpts {
	return sortOptions
}

// MakeFromStr parses a comma-separated sort expression
// ("ref:asc,created_at:desc") into SortOpts. Terms naming a column
// outside allowedFields, or carrying anything but asc/desc, are
// silently dropped so a hostile or stale expression can never reach
// the query builder.
func MakeFromStr(sortString string, allowedFields ...string) SortOpts {
	if sortString == "" {
		return nil
	}

	var options SortOpts
	for term := range strings.SplitSeq(sortString, ",") {
		if opt, ok := parseTerm(term, allowedFields); ok {
			options = append(options, opt)
		}
	}
	return options
}

// MakeForEntity parses a sort expression gated by the sortable columns
// of an aggregate root entity: its identifier and its own value
// columns. Child-table and container columns are not sortable at the
// root select.
func MakeForEntity(sortString string, entity *schema.Entity) SortOpts {
	return MakeFromStr(sortString, sortableColumns(entity)...)
}

func parseTerm(term string, allowedFields []string) (Opt, bool) {
	column, direction, ok := strings.Cut(term, ":")
	if !ok {
		return Opt{}, false
	}

	column = strings.TrimSpace(column)
	if !slices.Contains(allowedFields, column) {
		return Opt{}, false
	}

	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != string(Asc) && direction != string(Desc) {
		return Opt{}, false
	}

	return Opt{F: column, D: SortDirection(direction)}, true
}

func sortableColumns(entity *schema.Entity) []string {
	columns := make([]string, 0, len(entity.Properties))
	for _, prop := range entity.Properties {
		if prop.Kind == schema.KindValue {
			columns = append(columns, prop.Column)
		}
	}
	return columns
}
