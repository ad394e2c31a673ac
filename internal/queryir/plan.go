package queryir

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
	"github.com/roach88/meshroom/internal/schema"
)

// reservedSystemFields mirrors internal/schema's reservedFieldNames: row
// columns every entity carries whether or not the data model says so,
// so a selected field by one of these names is legal even though it
// never appears in an EntitySpec.Fields list.
var reservedSystemFields = map[string]bool{
	"id": true, "room_id": true, "mdate": true, "author": true,
	"deleted": true, "schema_version": true, "signature": true,
}

// PlanError reports a failure to lower a parsed selection into a Query:
// an unknown entity or field, a filter referencing a non-scalar field,
// or a nested selection through a non-reference field.
type PlanError struct {
	Entity  string
	Field   string
	Message string
}

func (e *PlanError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

func newPlanError(entity, field, format string, args ...any) *PlanError {
	return &PlanError{Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Plan lowers every top-level selection of a parsed query document into
// a queryir.Select, resolving entity/field references against reg and
// substituting vars for `$variable` filter/cursor values. rooms is the
// caller's effective Room set (internal/auth); every Select in the
// result, including nested ones, carries it as RoomFilter.
func Plan(doc *lang.QueryDocument, reg *schema.Registry, vars map[string]ir.Value, rooms []string) ([]*Select, error) {
	out := make([]*Select, 0, len(doc.Selections))
	for _, sel := range doc.Selections {
		planned, err := planSelection(sel.Entity, &sel, reg, vars, rooms)
		if err != nil {
			return nil, err
		}
		out = append(out, planned)
	}
	return out, nil
}

func planSelection(entityName string, sel *lang.Selection, reg *schema.Registry, vars map[string]ir.Value, rooms []string) (*Select, error) {
	spec, ok := reg.Resolve(entityName)
	if !ok {
		return nil, newPlanError(entityName, "", "unknown entity")
	}

	out := &Select{From: spec.Name, RoomFilter: rooms}

	var predicates []Predicate
	for _, f := range sel.Filters {
		if _, isSystem := reservedSystemFields[f.Field]; !isSystem {
			if _, ok := spec.FieldByName(f.Field); !ok {
				return nil, newPlanError(entityName, f.Field, "unknown field in filter")
			}
		}
		val, err := resolveValueExpr(f.Value, vars)
		if err != nil {
			return nil, newPlanError(entityName, f.Field, "%v", err)
		}
		if f.Op == lang.OpEq {
			predicates = append(predicates, Equals{Field: f.Field, Value: val})
		} else {
			predicates = append(predicates, Compare{Field: f.Field, Op: compareOpFromLang(f.Op), Value: val})
		}
	}
	switch len(predicates) {
	case 0:
	case 1:
		out.Filter = predicates[0]
	default:
		out.Filter = And{Predicates: predicates}
	}

	for _, k := range sel.OrderBy {
		out.Order = append(out.Order, SortKey{Field: k.Field, Desc: k.Direction == lang.Descending})
	}
	explicitOrder := len(out.Order) > 0

	if sel.First != nil {
		if !explicitOrder {
			return nil, newPlanError(entityName, "order_by", "first without order_by is rejected to avoid nondeterminism")
		}
		n := int(*sel.First)
		out.Limit = &n
	}
	if sel.Skip != nil {
		n := int(*sel.Skip)
		out.Offset = &n
	}

	// order_by defaults to (mdate asc, id asc) when unspecified, so
	// skip/before/after need no explicit order_by of their own to stay
	// deterministic; only `first` does (rejected above).
	if !explicitOrder {
		out.Order = append(out.Order, SortKey{Field: "mdate"}, SortKey{Field: "id"})
	}

	if sel.Before != nil {
		cur, err := resolveCursor(*sel.Before, vars, len(out.Order))
		if err != nil {
			return nil, newPlanError(entityName, "before", "%v", err)
		}
		out.Before = cur
	}
	if sel.After != nil {
		cur, err := resolveCursor(*sel.After, vars, len(out.Order))
		if err != nil {
			return nil, newPlanError(entityName, "after", "%v", err)
		}
		out.After = cur
	}
	if sel.HasSearch {
		out.Search = sel.Search
	}

	for _, field := range sel.Fields {
		proj, err := planProjection(entityName, spec, field, reg, vars, rooms)
		if err != nil {
			return nil, err
		}
		out.Projections = append(out.Projections, proj)
	}

	if sel.HasNullable {
		nullable := make(map[string]bool, len(sel.Nullable))
		for _, f := range sel.Nullable {
			nullable[f] = true
		}
		for _, p := range out.Projections {
			fp, ok := p.(FieldProjection)
			if !ok || reservedSystemFields[fp.Source] || nullable[fp.Source] {
				continue
			}
			out.Filter = foldNotNullFilter(out.Filter, fp.Source)
		}
	}

	return out, nil
}

func planProjection(entityName string, spec *ir.EntitySpec, field lang.SelectedField, reg *schema.Registry, vars map[string]ir.Value, rooms []string) (Projection, error) {
	alias := field.Alias
	if alias == "" {
		alias = field.Name
	}

	if field.Aggregate != nil {
		return AggregateProjection{Func: aggregateFuncFromLang(*field.Aggregate), Source: field.Name, Alias: alias}, nil
	}
	if field.JSONPath != "" || field.JSONIndex != nil {
		return JSONPathProjection{Source: field.Name, Alias: alias, Path: field.JSONPath, Index: field.JSONIndex}, nil
	}
	if field.Nested != nil {
		fieldSpec, ok := spec.FieldByName(field.Name)
		if !ok {
			return nil, newPlanError(entityName, field.Name, "unknown relation field")
		}
		if fieldSpec.Kind != ir.KindRef && fieldSpec.Kind != ir.KindRefArray {
			return nil, newPlanError(entityName, field.Name, "nested selection on a non-reference field")
		}
		childSel := planNestedSelection(fieldSpec.RefEntity, field.Nested)
		child, err := planSelection(fieldSpec.RefEntity, childSel, reg, vars, rooms)
		if err != nil {
			return nil, err
		}
		child.Filter = foldInSetFilter(child.Filter, "id", "$parent."+field.Name)
		return NestedProjection{Alias: alias, Source: field.Name, Query: child}, nil
	}

	if _, isSystem := reservedSystemFields[field.Name]; isSystem {
		return FieldProjection{Source: field.Name, Alias: alias}, nil
	}
	fieldSpec, ok := spec.FieldByName(field.Name)
	if !ok {
		return nil, newPlanError(entityName, field.Name, "unknown field")
	}
	return FieldProjection{Source: field.Name, Alias: alias, Nullable: fieldSpec.Nullable}, nil
}

// planNestedSelection copies a nested lang.Selection, filling in the
// entity name the parent field's schema resolved (nested selections
// carry no entity token of their own; see internal/lang's query
// grammar).
func planNestedSelection(entity string, nested *lang.Selection) *lang.Selection {
	copySel := *nested
	copySel.Entity = entity
	return &copySel
}

// foldInSetFilter prepends field IN (bound set) to an existing filter,
// correlating a nested selection's child rows to the parent row that
// fanned it out.
func foldInSetFilter(existing Predicate, field, boundVar string) Predicate {
	inSet := InSet{Field: field, BoundVar: boundVar}
	if existing == nil {
		return inSet
	}
	if and, ok := existing.(And); ok {
		return And{Predicates: append([]Predicate{inSet}, and.Predicates...)}
	}
	return And{Predicates: []Predicate{inSet, existing}}
}

// foldNotNullFilter conjoins field IS NOT NULL onto an existing filter,
// the same And-folding foldInSetFilter uses for nested fan-out.
func foldNotNullFilter(existing Predicate, field string) Predicate {
	notNull := IsNotNull{Field: field}
	if existing == nil {
		return notNull
	}
	if and, ok := existing.(And); ok {
		return And{Predicates: append(and.Predicates, notNull)}
	}
	return And{Predicates: []Predicate{existing, notNull}}
}

func resolveValueExpr(v lang.ValueExpr, vars map[string]ir.Value) (ir.Value, error) {
	if !v.IsVariable {
		return v.Literal, nil
	}
	val, ok := vars[v.VarName]
	if !ok {
		return nil, fmt.Errorf("unbound variable %q", v.VarName)
	}
	return val, nil
}

// resolveCursor decodes a before()/after() value into a Cursor. When
// order declares exactly one key the raw value is used directly; when
// it declares more, the value must be a VJSON array with one element
// per order key (the DSL's before/after clause takes a single value,
// so multi-key cursors are passed as an encoded tuple).
func resolveCursor(v lang.ValueExpr, vars map[string]ir.Value, orderArity int) (*Cursor, error) {
	val, err := resolveValueExpr(v, vars)
	if err != nil {
		return nil, err
	}
	if orderArity <= 1 {
		return &Cursor{Values: []ir.Value{val}}, nil
	}
	arr, ok := val.(ir.VJSON)
	if !ok {
		return nil, fmt.Errorf("a %d-key order_by requires a JSON array cursor value", orderArity)
	}
	values, err := decodeCursorTuple(arr, orderArity)
	if err != nil {
		return nil, err
	}
	return &Cursor{Values: values}, nil
}

func decodeCursorTuple(raw ir.VJSON, arity int) ([]ir.Value, error) {
	var elems []any
	if err := json.Unmarshal(raw.Raw, &elems); err != nil {
		return nil, fmt.Errorf("decode cursor tuple: %w", err)
	}
	if len(elems) != arity {
		return nil, fmt.Errorf("cursor tuple has %d element(s), order_by declares %d", len(elems), arity)
	}
	out := make([]ir.Value, len(elems))
	for i, e := range elems {
		out[i] = scalarFromAny(e)
	}
	return out, nil
}

func scalarFromAny(v any) ir.Value {
	switch val := v.(type) {
	case string:
		return ir.VString(val)
	case float64:
		return ir.VFloat(val)
	case bool:
		return ir.VBool(val)
	case nil:
		return ir.VNull{}
	default:
		return ir.VNull{}
	}
}

// EntitiesReached returns every distinct entity name a planned Select
// tree reads from: each top-level From plus, recursively, every nested
// selection's child entity. Room rights are granted per entity (see
// internal/auth), so a caller must authorize every name this returns,
// not just the outermost selection's.
func EntitiesReached(selects []*Select) []string {
	seen := map[string]bool{}
	var order []string
	var walk func(q Query)
	walk = func(q Query) {
		switch query := q.(type) {
		case *Select:
			if !seen[query.From] {
				seen[query.From] = true
				order = append(order, query.From)
			}
			for _, p := range query.Projections {
				switch proj := p.(type) {
				case NestedProjection:
					walk(proj.Query)
				case *NestedProjection:
					walk(proj.Query)
				}
			}
		case Select:
			walk(&query)
		case *Join:
			walk(query.Left)
			walk(query.Right)
		case Join:
			walk(&query)
		}
	}
	for _, sel := range selects {
		walk(sel)
	}
	return order
}

func compareOpFromLang(op lang.CompareOp) CompareOp {
	switch op {
	case lang.OpNeq:
		return OpNeq
	case lang.OpLt:
		return OpLt
	case lang.OpLte:
		return OpLte
	case lang.OpGt:
		return OpGt
	case lang.OpGte:
		return OpGte
	default:
		return OpEq
	}
}

func aggregateFuncFromLang(f lang.AggregateFunc) AggregateFunc {
	switch f {
	case lang.AggCount:
		return AggCount
	case lang.AggSum:
		return AggSum
	case lang.AggMin:
		return AggMin
	case lang.AggMax:
		return AggMax
	default:
		return AggAvg
	}
}
