package lang

// The query DSL selects a tree of entity fields, with per-entity
// filtering, ordering, pagination and full-text search:
//
//	query aquery {
//	    Person(
//	        name = "someone",
//	        age >= 1,
//	        order_by(surname asc),
//	        first 30,
//	        skip 2,
//	        before("opaque-cursor"),
//	        nullable(surname),
//	    ) {
//	        a_name: name
//	        surname
//	        parents(order_by(name asc)) {
//	            age
//	        }
//	    }
//	}
//
// grounded on
// original_source/src/database/query_language/query_parser.rs and
// query_parser_test.rs.

// CompareOp is a scalar filter comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// FilterExpr is one `field OP value` clause inside a selection's
// argument list.
type FilterExpr struct {
	Field string
	Op    CompareOp
	Value ValueExpr
	Pos   Position
}

// SortDirection is the direction of one order_by key.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// SortKey is one `field asc|desc` entry in an order_by(...) clause.
type SortKey struct {
	Field     string
	Direction SortDirection
}

// Selection is one `EntityName(args...) { fields... }` block, at top
// level or nested under a reference field.
type Selection struct {
	Alias   string // empty if not aliased
	Entity  string // empty for a nested selection (resolved via the parent field's schema)
	Filters []FilterExpr
	OrderBy []SortKey
	First   *int64
	Skip    *int64
	Before  *ValueExpr
	After   *ValueExpr
	Search  string // set when search("...") is present; mutually exclusive with OrderBy/Before/After
	HasSearch bool
	// Nullable lists the projected fields of this selection (by name, not
	// alias) allowed to come back null, when HasNullable is set. Any
	// other directly projected field that is null filters the row out.
	Nullable    []string
	HasNullable bool
	Fields   []SelectedField
	Pos      Position
}

// AggregateFunc names one of the DSL's aggregate projections
// (`alias: avg|count|sum|min|max(field)`).
type AggregateFunc int

const (
	AggAvg AggregateFunc = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

func (f AggregateFunc) String() string {
	switch f {
	case AggAvg:
		return "avg"
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	default:
		return "unknown"
	}
}

func aggregateKeyword(name string) (AggregateFunc, bool) {
	switch name {
	case "avg":
		return AggAvg, true
	case "count":
		return AggCount, true
	case "sum":
		return AggSum, true
	case "min":
		return AggMin, true
	case "max":
		return AggMax, true
	default:
		return 0, false
	}
}

// SelectedField is one entry in a selection's `{ ... }` body: a scalar
// field projection, an aggregate, a JSON projection, or a nested
// selection through a reference field. At most one of Nested,
// Aggregate, and JSONPath/JSONIndex is set.
//
// JSON path/index projections (`col->"$.a.b[2]"` / `col->3`) use a
// quoted path string or bare integer after `->`, adapted from the
// bare `$.a.b[2]` JSONPath syntax the grammar this is grounded on
// uses, to fit this package's already-tokenized string/int lexemes
// rather than adding a third path-specific lexer mode.
type SelectedField struct {
	Alias     string // empty if not aliased
	Name      string
	Nested    *Selection     // set when Name addresses a ref/ref-array field
	Aggregate *AggregateFunc // set for an aggregate projection; Name is the aggregated field
	JSONPath  string         // set for a `col->"$.path"` projection
	JSONIndex *int64         // set for a `col->N` array-index projection
	Pos       Position
}

// QueryDocument is the root of a parsed query: a named query containing
// one or more top-level selections, executed together as one result
// document.
type QueryDocument struct {
	Name       string
	Selections []Selection
}
