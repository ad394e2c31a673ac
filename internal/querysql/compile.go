// Package querysql compiles internal/queryir's abstract query algebra
// into parameterized SQLite text, the final stage of the pipeline
// internal/queryir/doc.go describes. Grounded on the teacher's
// internal/querysql/compile.go SQLCompiler, extended for Compare/InSet
// predicates, room scoping, Order/Limit/Offset/Before/After cursor
// paging, full-text Search, and the JSON-path/aggregate/nested
// projection forms.
//
// Every compiled statement carries an explicit ORDER BY (appending a
// final `id ASC` tiebreaker even when the caller supplied one) and
// every value is bound as a `?` parameter, never interpolated into the
// SQL text.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
)

// SQLCompiler compiles a queryir.Query to SQL. BoundValues supplies the
// runtime values for BoundEquals/InSet predicates (a single value for
// BoundEquals, a slice for InSet), keyed by BoundVar; the engine fills
// this in per execution, per nested fan-out row.
type SQLCompiler struct {
	BoundValues map[string]any
}

// NewSQLCompiler returns an SQLCompiler with an empty BoundValues map.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{BoundValues: make(map[string]any)}
}

// Compile converts q to parameterized SQL. Nested projections are not
// inlined into the statement: the caller (internal/store's query
// executor) compiles and runs a NestedProjection's Query separately per
// parent row, after filling BoundValues with that row's ref field.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Join:
		return c.compileJoin(query)
	case *queryir.Join:
		return c.compileJoin(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	selectClause, err := c.compileProjections(q.Projections)
	if err != nil {
		return "", nil, fmt.Errorf("compile projections: %w", err)
	}

	var conditions []string
	var params []any

	if len(q.RoomFilter) > 0 {
		placeholders := make([]string, len(q.RoomFilter))
		for i, room := range q.RoomFilter {
			placeholders[i] = "?"
			params = append(params, room)
		}
		conditions = append(conditions, fmt.Sprintf("room_id IN (%s)", strings.Join(placeholders, ", ")))
	}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		conditions = append(conditions, filterSQL)
		params = append(params, filterParams...)
	}

	if q.Search != "" {
		conditions = append(conditions, fmt.Sprintf("id IN (SELECT id FROM %s_fts WHERE %s_fts MATCH ?)", q.From, q.From))
		params = append(params, q.Search)
	}

	if cursorSQL, cursorParams, err := c.compileCursor(q); err != nil {
		return "", nil, err
	} else if cursorSQL != "" {
		conditions = append(conditions, cursorSQL)
		params = append(params, cursorParams...)
	}

	var whereClause string
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	orderByClause := " ORDER BY " + c.stableOrderKey(q.Order)

	var limitClause string
	if q.Limit != nil {
		limitClause += " LIMIT ?"
		params = append(params, *q.Limit)
	}
	if q.Offset != nil {
		if q.Limit == nil {
			limitClause += " LIMIT -1"
		}
		limitClause += " OFFSET ?"
		params = append(params, *q.Offset)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s%s%s", selectClause, q.From, whereClause, orderByClause, limitClause)
	return sql, params, nil
}

// compileProjections renders the SELECT column list. Nested projections
// are skipped (they compile to their own statement); if every
// projection is nested, "id" is selected so the fan-out join has a key
// to correlate on.
func (c *SQLCompiler) compileProjections(projections []queryir.Projection) (string, error) {
	var parts []string
	for _, p := range projections {
		switch proj := p.(type) {
		case queryir.FieldProjection:
			parts = append(parts, renderAliased(proj.Source, proj.Alias))
		case queryir.JSONPathProjection:
			var expr string
			if proj.Index != nil {
				expr = fmt.Sprintf("json_extract(%s, '$[%d]')", proj.Source, *proj.Index)
			} else {
				expr = fmt.Sprintf("json_extract(%s, '%s')", proj.Source, proj.Path)
			}
			parts = append(parts, renderAliased(expr, proj.Alias))
		case queryir.AggregateProjection:
			fn, err := sqlAggregateFunc(proj.Func)
			if err != nil {
				return "", err
			}
			parts = append(parts, renderAliased(fmt.Sprintf("%s(%s)", fn, proj.Source), proj.Alias))
		case queryir.NestedProjection:
			continue
		default:
			return "", fmt.Errorf("unsupported projection type: %T", p)
		}
	}
	if len(parts) == 0 {
		return "id", nil
	}
	return strings.Join(parts, ", "), nil
}

func renderAliased(expr, alias string) string {
	if alias == "" || alias == expr {
		return expr
	}
	return fmt.Sprintf("%s AS %s", expr, alias)
}

func sqlAggregateFunc(f queryir.AggregateFunc) (string, error) {
	switch f {
	case queryir.AggAvg:
		return "AVG", nil
	case queryir.AggCount:
		return "COUNT", nil
	case queryir.AggSum:
		return "SUM", nil
	case queryir.AggMin:
		return "MIN", nil
	case queryir.AggMax:
		return "MAX", nil
	default:
		return "", fmt.Errorf("unsupported aggregate function: %d", f)
	}
}

// stableOrderKey renders ORDER BY from the declared sort keys and
// appends a final `id ASC` tiebreaker unless the sort keys already end
// on id, so every compiled statement's result order is fully
// deterministic. internal/queryir.Plan always populates order with the
// caller's explicit order_by or, absent one, the (mdate asc, id asc)
// default (spec.md §4.3), so order here is never empty.
func (c *SQLCompiler) stableOrderKey(order []queryir.SortKey) string {
	var parts []string
	for _, k := range order {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s COLLATE BINARY", k.Field, dir))
	}
	if len(order) == 0 || order[len(order)-1].Field != "id" {
		parts = append(parts, "id ASC COLLATE BINARY")
	}
	return strings.Join(parts, ", ")
}

// compileCursor renders a Before/After composite cursor as a row-value
// comparison, e.g. for Order [mdate asc, id asc] and After:
//
//	(mdate, id) > (?, ?)
//
// SQLite supports row-value comparisons since 3.15. A single-key order
// renders as a plain scalar comparison instead, for readability.
func (c *SQLCompiler) compileCursor(q queryir.Select) (string, []any, error) {
	keys := q.Order
	if len(keys) == 0 {
		keys = []queryir.SortKey{{Field: "id"}}
	}

	render := func(cursor *queryir.Cursor, wantBefore bool) (string, []any, error) {
		if cursor == nil {
			return "", nil, nil
		}
		if len(cursor.Values) != len(keys) {
			return "", nil, fmt.Errorf("cursor has %d value(s) but order_by declares %d key(s)", len(cursor.Values), len(keys))
		}
		fields := make([]string, len(keys))
		placeholders := make([]string, len(keys))
		params := make([]any, len(keys))
		for i, k := range keys {
			fields[i] = k.Field
			placeholders[i] = "?"
			param, err := irValueToParam(cursor.Values[i])
			if err != nil {
				return "", nil, err
			}
			params[i] = param
		}
		// direction follows the first key: a descending first key means
		// "before" moves to larger values.
		op := ">"
		if wantBefore {
			op = "<"
		}
		if keys[0].Desc {
			if op == ">" {
				op = "<"
			} else {
				op = ">"
			}
		}
		if len(keys) == 1 {
			return fmt.Sprintf("%s %s ?", fields[0], op), params, nil
		}
		return fmt.Sprintf("(%s) %s (%s)", strings.Join(fields, ", "), op, strings.Join(placeholders, ", ")), params, nil
	}

	var conditions []string
	var params []any
	if sql, p, err := render(q.After, false); err != nil {
		return "", nil, err
	} else if sql != "" {
		conditions = append(conditions, sql)
		params = append(params, p...)
	}
	if sql, p, err := render(q.Before, true); err != nil {
		return "", nil, err
	} else if sql != "" {
		conditions = append(conditions, sql)
		params = append(params, p...)
	}
	return strings.Join(conditions, " AND "), params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.Compare:
		return c.compileCompare(pred)
	case *queryir.Compare:
		return c.compileCompare(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	case queryir.BoundEquals:
		return c.compileBoundEquals(pred)
	case *queryir.BoundEquals:
		return c.compileBoundEquals(*pred)
	case queryir.InSet:
		return c.compileInSet(pred)
	case *queryir.InSet:
		return c.compileInSet(*pred)
	case queryir.IsNotNull:
		return c.compileIsNotNull(pred)
	case *queryir.IsNotNull:
		return c.compileIsNotNull(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return fmt.Sprintf("%s = ?", eq.Field), []any{param}, nil
}

func (c *SQLCompiler) compileCompare(cmp queryir.Compare) (string, []any, error) {
	param, err := irValueToParam(cmp.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	op, err := sqlCompareOp(cmp.Op)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s ?", cmp.Field, op), []any{param}, nil
}

func sqlCompareOp(op queryir.CompareOp) (string, error) {
	switch op {
	case queryir.OpEq:
		return "=", nil
	case queryir.OpNeq:
		return "!=", nil
	case queryir.OpLt:
		return "<", nil
	case queryir.OpLte:
		return "<=", nil
	case queryir.OpGt:
		return ">", nil
	case queryir.OpGte:
		return ">=", nil
	default:
		return "", fmt.Errorf("unsupported comparison operator: %d", op)
	}
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

func (c *SQLCompiler) compileBoundEquals(beq queryir.BoundEquals) (string, []any, error) {
	val, ok := c.BoundValues[beq.BoundVar]
	if !ok {
		return "", nil, fmt.Errorf("no bound value supplied for %q", beq.BoundVar)
	}
	return fmt.Sprintf("%s = ?", beq.Field), []any{val}, nil
}

// compileInSet renders "field IN (?, ?, ...)" from a bound slice value.
// An empty bound set compiles to the always-false "1 = 0" rather than a
// malformed empty IN list.
func (c *SQLCompiler) compileInSet(in queryir.InSet) (string, []any, error) {
	val, ok := c.BoundValues[in.BoundVar]
	if !ok {
		return "", nil, fmt.Errorf("no bound set supplied for %q", in.BoundVar)
	}
	values, err := toAnySlice(val)
	if err != nil {
		return "", nil, fmt.Errorf("bound set for %q: %w", in.BoundVar, err)
	}
	if len(values) == 0 {
		return "1 = 0", nil, nil
	}
	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("%s IN (%s)", in.Field, strings.Join(placeholders, ", ")), values, nil
}

func (c *SQLCompiler) compileIsNotNull(n queryir.IsNotNull) (string, []any, error) {
	return fmt.Sprintf("%s IS NOT NULL", n.Field), nil, nil
}

func toAnySlice(v any) ([]any, error) {
	switch vs := v.(type) {
	case []any:
		return vs, nil
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a slice of values, got %T", v)
	}
}

// compileJoin compiles an inner join. Only Select operands are
// supported, matching the teacher's MVP restriction.
func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	leftTable, leftOK := getSelectFrom(j.Left)
	if !leftOK {
		return "", nil, fmt.Errorf("join left must be a Select")
	}
	rightTable, rightOK := getSelectFrom(j.Right)
	if !rightOK {
		return "", nil, fmt.Errorf("join right must be a Select")
	}

	var allParams []any
	if left := getSelect(j.Left); left != nil && left.Filter != nil {
		_, params, err := c.compilePredicate(left.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile left filter: %w", err)
		}
		allParams = append(allParams, params...)
	}
	if right := getSelect(j.Right); right != nil && right.Filter != nil {
		_, params, err := c.compilePredicate(right.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile right filter: %w", err)
		}
		allParams = append(allParams, params...)
	}

	onSQL := "1 = 1"
	if j.On != nil {
		sql, onParams, err := c.compilePredicate(j.On)
		if err != nil {
			return "", nil, fmt.Errorf("compile join ON: %w", err)
		}
		onSQL = sql
		allParams = append(allParams, onParams...)
	}

	sql := fmt.Sprintf("%s INNER JOIN %s ON %s ORDER BY %s.id ASC COLLATE BINARY", leftTable, rightTable, onSQL, leftTable)
	return sql, allParams, nil
}

func getSelectFrom(q queryir.Query) (string, bool) {
	switch query := q.(type) {
	case queryir.Select:
		return query.From, true
	case *queryir.Select:
		return query.From, true
	default:
		return "", false
	}
}

func getSelect(q queryir.Query) *queryir.Select {
	switch query := q.(type) {
	case queryir.Select:
		return &query
	case *queryir.Select:
		return query
	default:
		return nil
	}
}

// irValueToParam converts an ir.Value to a Go native type the SQLite
// driver accepts as a bound parameter.
func irValueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.VString:
		return string(val), nil
	case ir.VInt:
		return int64(val), nil
	case ir.VFloat:
		return float64(val), nil
	case ir.VBool:
		return bool(val), nil
	case ir.VBase64:
		return []byte(val), nil
	case ir.VRef:
		return string(val), nil
	case ir.VJSON:
		return string(val.Raw), nil
	case ir.VNull, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
