package store

import (
	"context"
	"fmt"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
	"github.com/roach88/meshroom/internal/querysql"
)

// hiddenAliasPrefix marks a column added to a compiled Select purely for
// the executor's own bookkeeping (row identity for nested fan-out
// correlation, or a ref/ref-array field a caller didn't project but a
// nested sub-query still needs to know which ids to fan out to). Hidden
// columns never appear in a returned result map.
const hiddenAliasPrefix = "__meshroom_hidden__"

// ExecuteSelect runs sel (and, recursively, any NestedProjection within
// it) and returns one map per result row, keyed by the user-assigned
// alias the query planner recorded (internal/queryir.Plan), ready for
// spec.md §6's "JSON document with a top-level object whose keys are the
// user-assigned aliases".
func (s *Store) ExecuteSelect(ctx context.Context, sel *queryir.Select) ([]map[string]any, error) {
	rows, err := s.executeSelect(ctx, sel, nil)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.values
	}
	return out, nil
}

type scannedRow struct {
	id     string
	values map[string]any
}

// executeSelect compiles and runs sel with bound supplying any
// "$parent.<field>" InSet values a caller (its own enclosing
// executeSelect call, fanning out a NestedProjection) has already
// resolved for it.
func (s *Store) executeSelect(ctx context.Context, sel *queryir.Select, bound map[string]any) ([]scannedRow, error) {
	spec, ok := s.reg.Resolve(sel.From)
	if !ok {
		return nil, fmt.Errorf("execute select: unknown entity %q", sel.From)
	}

	idAlias, idHidden := existingFieldAlias(sel.Projections, "id")
	hiddenCols := map[string]string{} // nested.Source -> hidden column alias
	effective := *sel
	effective.Projections = append([]queryir.Projection{}, sel.Projections...)

	if idAlias == "" {
		idAlias = hiddenAliasPrefix + "id"
		idHidden = true
		effective.Projections = append(effective.Projections, queryir.FieldProjection{Source: "id", Alias: idAlias})
	}

	var nested []queryir.NestedProjection
	for _, p := range sel.Projections {
		np, ok := p.(queryir.NestedProjection)
		if !ok {
			continue
		}
		nested = append(nested, np)
		if alias, _ := existingFieldAlias(sel.Projections, np.Source); alias != "" {
			hiddenCols[np.Source] = alias
			continue
		}
		hiddenAlias := hiddenAliasPrefix + np.Source
		hiddenCols[np.Source] = hiddenAlias
		effective.Projections = append(effective.Projections, queryir.FieldProjection{Source: np.Source, Alias: hiddenAlias})
	}

	compiler := querysql.NewSQLCompiler()
	for k, v := range bound {
		compiler.BoundValues[k] = v
	}

	sqlText, params, err := compiler.Compile(effective)
	if err != nil {
		return nil, fmt.Errorf("execute select: compile: %w", err)
	}

	dbRows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("execute select: query: %w", err)
	}
	defer dbRows.Close()

	colNames, err := dbRows.Columns()
	if err != nil {
		return nil, fmt.Errorf("execute select: columns: %w", err)
	}

	var results []scannedRow
	refRaw := map[string]map[string]any{} // row id -> nested.Source -> raw scanned value

	for dbRows.Next() {
		scanned := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := dbRows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("execute select: scan: %w", err)
		}

		byCol := make(map[string]any, len(colNames))
		for i, name := range colNames {
			byCol[name] = scanned[i]
		}

		id := asString(byCol[idAlias])
		values := map[string]any{}
		for _, proj := range sel.Projections {
			if err := assignProjection(values, proj, byCol, spec); err != nil {
				return nil, fmt.Errorf("execute select: %w", err)
			}
		}
		_ = idHidden

		rowRaw := map[string]any{}
		for source, alias := range hiddenCols {
			rowRaw[source] = byCol[alias]
		}
		refRaw[id] = rowRaw

		results = append(results, scannedRow{id: id, values: values})
	}
	if err := dbRows.Err(); err != nil {
		return nil, fmt.Errorf("execute select: iterate: %w", err)
	}

	for _, np := range nested {
		if err := s.fanOutNested(ctx, spec, np, results, refRaw); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// fanOutNested resolves one NestedProjection across every row of
// results, running its child Select once with the union of referenced
// child ids bound to its "$parent.<Source>" InSet filter (one query
// regardless of how many parent rows reference the same child id set),
// then embedding each parent's matching child row(s) under np.Alias.
func (s *Store) fanOutNested(ctx context.Context, parentSpec *ir.EntitySpec, np queryir.NestedProjection, results []scannedRow, refRaw map[string]map[string]any) error {
	field, ok := parentSpec.FieldByName(np.Source)
	if !ok {
		return fmt.Errorf("fan out nested: unknown field %q on %s", np.Source, parentSpec.Name)
	}

	idSet := map[string]bool{}
	parentIDs := map[string][]string{} // parent row id -> ordered child ids it references
	for _, row := range results {
		ids := childIDsOf(refRaw[row.id][np.Source], field.Kind)
		parentIDs[row.id] = ids
		for _, id := range ids {
			idSet[id] = true
		}
	}

	childSelect, ok := np.Query.(*queryir.Select)
	if !ok {
		return fmt.Errorf("fan out nested: unsupported nested query type %T", np.Query)
	}

	boundVar, ok := findInSetBoundVar(childSelect.Filter)
	if !ok {
		return fmt.Errorf("fan out nested: child select for %q has no InSet correlation filter", np.Alias)
	}

	union := make([]string, 0, len(idSet))
	for id := range idSet {
		union = append(union, id)
	}

	var childRows []scannedRow
	if len(union) > 0 {
		var err error
		childRows, err = s.executeSelect(ctx, childSelect, map[string]any{boundVar: union})
		if err != nil {
			return fmt.Errorf("fan out nested %q: %w", np.Alias, err)
		}
	}

	byID := make(map[string]map[string]any, len(childRows))
	for _, cr := range childRows {
		byID[cr.id] = cr.values
	}

	for _, row := range results {
		ids := parentIDs[row.id]
		if field.Kind == ir.KindRef {
			if len(ids) == 1 {
				if child, ok := byID[ids[0]]; ok {
					row.values[np.Alias] = child
				} else {
					row.values[np.Alias] = nil
				}
			} else {
				row.values[np.Alias] = nil
			}
			continue
		}
		list := make([]any, 0, len(ids))
		for _, id := range ids {
			if child, ok := byID[id]; ok {
				list = append(list, child)
			}
		}
		row.values[np.Alias] = list
	}

	return nil
}

func childIDsOf(raw any, kind ir.FieldKind) []string {
	switch kind {
	case ir.KindRef:
		if raw == nil {
			return nil
		}
		return []string{asString(raw)}
	case ir.KindRefArray:
		if raw == nil {
			return nil
		}
		val, err := columnToResultValue(raw, ir.FieldSpec{Kind: ir.KindRefArray})
		if err != nil {
			return nil
		}
		list, _ := val.([]any)
		ids := make([]string, len(list))
		for i, v := range list {
			ids[i] = fmt.Sprint(v)
		}
		return ids
	default:
		return nil
	}
}

// findInSetBoundVar recovers the BoundVar a planned nested Select's
// InSet filter correlates on, whether it is the Select's whole Filter or
// one conjunct of an And (internal/queryir.Plan always prepends it, see
// foldInSetFilter).
func findInSetBoundVar(pred queryir.Predicate) (string, bool) {
	switch p := pred.(type) {
	case queryir.InSet:
		return p.BoundVar, true
	case queryir.And:
		for _, sub := range p.Predicates {
			if v, ok := findInSetBoundVar(sub); ok {
				return v, ok
			}
		}
	}
	return "", false
}

func existingFieldAlias(projections []queryir.Projection, source string) (alias string, found bool) {
	for _, p := range projections {
		if fp, ok := p.(queryir.FieldProjection); ok && fp.Source == source {
			return fp.Alias, true
		}
	}
	return "", false
}

func assignProjection(values map[string]any, proj queryir.Projection, byCol map[string]any, spec *ir.EntitySpec) error {
	switch p := proj.(type) {
	case queryir.FieldProjection:
		raw := byCol[p.Alias]
		if fieldSpec, ok := spec.FieldByName(p.Source); ok {
			v, err := columnToResultValue(raw, fieldSpec)
			if err != nil {
				return fmt.Errorf("field %q: %w", p.Source, err)
			}
			values[p.Alias] = v
			return nil
		}
		v, err := systemColumnToResultValue(p.Source, raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", p.Source, err)
		}
		values[p.Alias] = v
	case queryir.JSONPathProjection:
		values[p.Alias] = byCol[p.Alias]
	case queryir.AggregateProjection:
		values[p.Alias] = byCol[p.Alias]
	case queryir.NestedProjection:
		// filled in by fanOutNested after the base rows are scanned.
	default:
		return fmt.Errorf("unsupported projection type %T", proj)
	}
	return nil
}
