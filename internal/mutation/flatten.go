package mutation

import (
	"fmt"

	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
	"github.com/roach88/meshroom/internal/schema"
)

// pendingRow is one entity block of a mutation document flattened to a
// single to-be-written row: its resolved id, entity type, field values
// (nested/array references already replaced by the child node's id),
// and, for a top-level block, the alias it was given.
type pendingRow struct {
	id     string
	entity string
	alias  string
	fields ir.RowFields
}

// flattener walks a lang.MutationDocument's tree of entity blocks,
// resolving each into a pendingRow and recording the reference edges
// between them as a dependencyGraph so the executor can write referents
// before referrers (spec.md §4.6: "the planner topologically orders
// them so referents exist before referrers").
type flattener struct {
	reg     *schema.Registry
	vars    map[string]ir.Value
	nodes   map[string]*pendingRow
	graph   dependencyGraph
	counter int
}

func newFlattener(reg *schema.Registry, vars map[string]ir.Value) *flattener {
	return &flattener{
		reg:   reg,
		vars:  vars,
		nodes: make(map[string]*pendingRow),
		graph: make(dependencyGraph),
	}
}

func (f *flattener) nextKey(entity string) string {
	f.counter++
	return fmt.Sprintf("%s#%d", entity, f.counter)
}

// flattenEntity resolves ent (declared as entityName) and its nested
// blocks into pendingRow nodes, returning ent's own node key.
func (f *flattener) flattenEntity(ent *lang.MutationEntity, entityName string) (string, error) {
	spec, ok := f.reg.Resolve(entityName)
	if !ok {
		return "", fmt.Errorf("mutation: unknown entity %q", entityName)
	}

	key := f.nextKey(entityName)
	f.graph[key] = nil

	row := &pendingRow{
		id:     crypto.NewRowID(),
		entity: entityName,
		alias:  ent.Alias,
		fields: make(ir.RowFields, len(ent.Fields)),
	}

	for i := range ent.Fields {
		field := ent.Fields[i]

		if field.Name == "id" {
			if field.Value.Scalar == nil {
				return "", fmt.Errorf("mutation: %s.id must be a variable or literal", entityName)
			}
			v, err := f.resolveValue(*field.Value.Scalar)
			if err != nil {
				return "", err
			}
			id, ok := v.(ir.VString)
			if !ok {
				return "", fmt.Errorf("mutation: %s.id must resolve to a string, got %T", entityName, v)
			}
			row.id = string(id)
			continue
		}

		fieldSpec, ok := spec.FieldByName(field.Name)
		if !ok {
			return "", fmt.Errorf("mutation: %s has no field %q", entityName, field.Name)
		}

		switch {
		case field.Value.Nested != nil:
			if fieldSpec.Kind != ir.KindRef {
				return "", fmt.Errorf("mutation: %s.%s is not a single-entity reference", entityName, field.Name)
			}
			childKey, err := f.flattenEntity(field.Value.Nested, fieldSpec.RefEntity)
			if err != nil {
				return "", err
			}
			f.graph[key] = append(f.graph[key], childKey)
			row.fields[field.Name] = ir.VRef(f.nodes[childKey].id)

		case field.Value.Array != nil:
			if fieldSpec.Kind != ir.KindRefArray {
				return "", fmt.Errorf("mutation: %s.%s is not an entity-reference array", entityName, field.Name)
			}
			ids := make([]string, len(field.Value.Array))
			for j := range field.Value.Array {
				childKey, err := f.flattenEntity(&field.Value.Array[j], fieldSpec.RefEntity)
				if err != nil {
					return "", err
				}
				f.graph[key] = append(f.graph[key], childKey)
				ids[j] = f.nodes[childKey].id
			}
			row.fields[field.Name] = ir.VRefArray(ids)

		default:
			if field.Value.Scalar == nil {
				return "", fmt.Errorf("mutation: %s.%s has no assigned value", entityName, field.Name)
			}
			v, err := f.resolveValue(*field.Value.Scalar)
			if err != nil {
				return "", err
			}
			row.fields[field.Name] = v
		}
	}

	f.nodes[key] = row
	return key, nil
}

func (f *flattener) resolveValue(v lang.ValueExpr) (ir.Value, error) {
	if !v.IsVariable {
		return v.Literal, nil
	}
	val, ok := f.vars[v.VarName]
	if !ok {
		return nil, fmt.Errorf("mutation: unbound variable $%s", v.VarName)
	}
	return val, nil
}
