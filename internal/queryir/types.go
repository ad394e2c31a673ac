// Package queryir is the database's abstract query algebra: a small,
// closed set of query and predicate shapes that internal/lang's parsed
// query selections are lowered into, and that internal/querysql compiles
// to parameterized SQLite. Grounded on the teacher's
// internal/queryir/types.go Select/Join/Equals/BoundEquals/And algebra,
// extended per this system's planner needs: non-equality Compare,
// set-membership InSet (for nested relation fan-out and room scoping),
// Order/Limit/Offset/Before/After paging, full-text Search, and a
// Projection hierarchy covering plain fields, JSON-path extraction,
// aggregates, and nested sub-selections.
package queryir

import "github.com/roach88/meshroom/internal/ir"

// Query is a sealed interface: only the types in this package implement
// it. The marker-method pattern seals the interface to this package and
// lets compilers (internal/querysql) exhaustively type-switch over it.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface used in Select.Filter and Join.On.
type Predicate interface {
	predicateNode()
}

// Projection is a sealed interface describing one column of a Select's
// result: a plain field, a JSON-path/array-index extraction, an
// aggregate, or a nested sub-query fanned out per parent row.
type Projection interface {
	projectionNode()
}

// CompareOp is a non-equality scalar comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// AggregateFunc names a supported SQL aggregate.
type AggregateFunc int

const (
	AggAvg AggregateFunc = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

// SortKey is one key of a Select's ORDER BY clause.
type SortKey struct {
	Field string
	Desc  bool
}

// Cursor is an opaque composite key used by Before/After paging: one
// value per SortKey of the query's Order, compared lexicographically in
// the declared directions (see DESIGN.md's Open Question decision on
// before/after vs multi-key order_by).
type Cursor struct {
	Values []ir.Value
}

// Select is a single-table read: rows from From, restricted by
// RoomFilter and Filter, paged by Order/Limit/Offset/Before/After or
// full-text Search, projected through Projections.
//
// RoomFilter is populated by the planner from the caller's effective
// Room set (internal/auth) and is always rendered as its own `room_id
// IN (...)` clause rather than folded into Filter, so the authorization
// boundary stays visible and can't be accidentally dropped while
// composing predicates.
//
// Search and Order/Before/After are mutually exclusive: full-text
// search result order comes from the search index's ranking, not a
// declared sort key (see Validate/CheckSemantics).
type Select struct {
	From        string
	RoomFilter  []string
	Filter      Predicate
	Order       []SortKey
	Limit       *int
	Offset      *int
	Before      *Cursor
	After       *Cursor
	Search      string
	Projections []Projection
}

func (Select) queryNode() {}

// Join is an inner join of two queries, equi-joined by On. Only INNER
// joins are supported, mirroring the teacher's portable fragment.
type Join struct {
	Left  Query
	Right Query
	On    Predicate
}

func (Join) queryNode() {}

// Equals is a field-equals-literal predicate.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// Compare is a field-compares-to-literal predicate for the five
// non-equality operators (use Equals for OpEq).
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.Value
}

func (Compare) predicateNode() {}

// BoundEquals is a field-equals-bound-variable predicate, the value
// supplied by the caller at execution time rather than baked into the
// plan (e.g. a deletion target id, or a value captured by an enclosing
// mutation).
type BoundEquals struct {
	Field    string
	BoundVar string
}

func (BoundEquals) predicateNode() {}

// InSet is a field-in-bound-set predicate: Field must match one of the
// values the caller supplies for BoundVar at execution time. This is
// how a nested relation selection is correlated to its parent row: the
// parent's ref/ref-array field values become the bound set, and the
// child Select's Filter is an InSet over "id".
type InSet struct {
	Field    string
	BoundVar string
}

func (InSet) predicateNode() {}

// IsNotNull is a field-is-not-null predicate. The planner adds one per
// directly projected field a selection's nullable(...) clause does not
// exempt, so a row missing a required field is filtered rather than
// returned with a null in its place.
type IsNotNull struct {
	Field string
}

func (IsNotNull) predicateNode() {}

// And is a conjunction; an empty Predicates slice is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// FieldProjection selects one scalar or reference field, optionally
// aliased.
type FieldProjection struct {
	Source   string
	Alias    string
	Nullable bool
}

func (FieldProjection) projectionNode() {}

// JSONPathProjection extracts one element out of a Json-scalar field:
// either a dotted/indexed path (Path non-empty) or a bare array index
// (Index non-nil). Exactly one of Path/Index is set.
type JSONPathProjection struct {
	Source string
	Alias  string
	Path   string
	Index  *int64
}

func (JSONPathProjection) projectionNode() {}

// AggregateProjection computes one aggregate over Source across the
// rows a Select would otherwise return, forcing the compiled SQL into a
// single-row (or grouped) aggregate form. An aggregate projection may
// not appear in the same Select as a plain FieldProjection/
// JSONPathProjection (see CheckSemantics).
type AggregateProjection struct {
	Func   AggregateFunc
	Source string
	Alias  string
}

func (AggregateProjection) projectionNode() {}

// NestedProjection fans a sub-query out per parent row: Query is
// executed once per row of the enclosing Select (with its InSet/
// BoundEquals filled in from that row's field values) and its result
// set is embedded under Alias. Source names the parent entity's
// ref/ref-array field the child rows were selected through, so the
// executor knows which (hidden, not user-projected) parent column
// supplies the bound id set for Query's "$parent.<Source>" InSet filter.
type NestedProjection struct {
	Alias  string
	Source string
	Query  Query
}

func (NestedProjection) projectionNode() {}
