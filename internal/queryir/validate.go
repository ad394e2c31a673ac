package queryir

import "fmt"

// ValidationResult reports which backend-specific features a query uses.
// It never blocks execution; see CheckSemantics for hard constraints.
type ValidationResult struct {
	IsPortable bool
	Warnings   []string
}

// Validate walks a query and flags constructs a hypothetical alternate
// backend would need to special-case: JSON-path projections and
// full-text search have no single agreed-upon cross-engine
// representation the way equi-join/filter/project do, and aggregate
// projections are flagged when mixed with plain ones in one select (an
// aggregate on its own is not flagged).
func Validate(query Query) ValidationResult {
	v := &validator{}
	v.validateQuery(query)
	return ValidationResult{IsPortable: len(v.warnings) == 0, Warnings: v.warnings}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addWarning("nil query")
		return
	}
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Join:
		v.validateJoin(query)
	case *Join:
		v.validateJoin(*query)
	default:
		v.addWarning("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if len(sel.Projections) == 0 {
		v.addWarning("empty projection list (SELECT *)")
	}
	hasAgg, hasPlain := false, false
	for _, p := range sel.Projections {
		switch proj := p.(type) {
		case AggregateProjection, *AggregateProjection:
			hasAgg = true
		case JSONPathProjection:
			v.addWarning("JSON-path projection on %q has no portable representation", proj.Source)
		case *JSONPathProjection:
			v.addWarning("JSON-path projection on %q has no portable representation", proj.Source)
		case NestedProjection:
			v.validateQuery(proj.Query)
		case *NestedProjection:
			v.validateQuery(proj.Query)
		default:
			hasPlain = true
		}
	}
	if hasAgg && hasPlain {
		v.addWarning("aggregate and plain projections mixed in one select")
	}
	if sel.Search != "" {
		v.addWarning("full-text search() has no portable representation")
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validateJoin(join Join) {
	v.validateQuery(join.Left)
	v.validateQuery(join.Right)
	if join.On != nil {
		v.validatePredicate(join.On)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals, *Equals, BoundEquals, *BoundEquals, InSet, *InSet, Compare, *Compare, IsNotNull, *IsNotNull:
		// always portable
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addWarning("unknown predicate type: %T", p)
	}
}

// CheckSemantics reports hard constraint violations that make a query
// impossible to execute as written: pagination without an explicit
// order, search mixed with ordering or cursors, a cursor whose arity
// doesn't match order_by, and aggregate projections mixed with plain
// ones. Unlike Validate, a non-empty result means the plan must be
// rejected, not merely annotated.
func CheckSemantics(q Query) []*SemanticError {
	var errs []*SemanticError
	checkQuerySemantics(q, &errs)
	return errs
}

func checkQuerySemantics(q Query, errs *[]*SemanticError) {
	switch query := q.(type) {
	case Select:
		checkSelectSemantics(query, errs)
	case *Select:
		checkSelectSemantics(*query, errs)
	case Join:
		checkQuerySemantics(query.Left, errs)
		checkQuerySemantics(query.Right, errs)
	case *Join:
		checkQuerySemantics(query.Left, errs)
		checkQuerySemantics(query.Right, errs)
	default:
		*errs = append(*errs, newSemanticError(ErrUnsupportedQueryType, "", "unsupported query type %T", q))
	}
}

func checkSelectSemantics(sel Select, errs *[]*SemanticError) {
	// order_by defaults to (mdate asc, id asc) when unspecified, so only
	// `first` needs an explicit order_by of its own; skip/before/after
	// are deterministic under that default.
	if sel.Limit != nil && len(sel.Order) == 0 {
		*errs = append(*errs, newSemanticError(ErrMissingOrderForPaging, "order_by",
			"first without order_by is rejected to avoid nondeterminism"))
	}
	wantArity := len(sel.Order)
	if wantArity == 0 {
		wantArity = 2 // the (mdate, id) default
	}
	if sel.Before != nil && len(sel.Before.Values) != wantArity {
		*errs = append(*errs, newSemanticError(ErrCursorArityMismatch, "before",
			"before() supplies %d value(s) but order_by declares %d key(s)", len(sel.Before.Values), wantArity))
	}
	if sel.After != nil && len(sel.After.Values) != wantArity {
		*errs = append(*errs, newSemanticError(ErrCursorArityMismatch, "after",
			"after() supplies %d value(s) but order_by declares %d key(s)", len(sel.After.Values), wantArity))
	}
	if sel.Search != "" {
		if len(sel.Order) > 0 {
			*errs = append(*errs, newSemanticError(ErrSearchWithOrder, "order_by", "search() cannot be combined with order_by"))
		}
		if sel.Before != nil || sel.After != nil {
			*errs = append(*errs, newSemanticError(ErrSearchWithCursor, "", "search() cannot be combined with before/after"))
		}
	}

	hasAgg, hasPlain := false, false
	for _, p := range sel.Projections {
		switch proj := p.(type) {
		case AggregateProjection, *AggregateProjection:
			hasAgg = true
		case NestedProjection:
			checkQuerySemantics(proj.Query, errs)
		case *NestedProjection:
			checkQuerySemantics(proj.Query, errs)
		default:
			hasPlain = true
		}
	}
	if hasAgg && hasPlain {
		*errs = append(*errs, newSemanticError(ErrAggregateMixedWithPlain, "", "an aggregate projection cannot share a select with a non-aggregate one"))
	}
}
