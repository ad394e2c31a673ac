package schema

import (
	"sync"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
)

// Registry holds every namespace and entity declared so far, along with
// the schema version that last changed. It is safe for concurrent use:
// Apply takes an exclusive lock, Resolve/Version/Entities take a shared
// one, mirroring the teacher's single-writer/many-reader store
// discipline (internal/store/store.go) applied to schema metadata
// instead of rows.
type Registry struct {
	mu       sync.RWMutex
	version  ir.SchemaVersion
	entities map[string]*ir.EntitySpec // qualified name -> spec
}

// New returns an empty Registry at schema version 0.
func New() *Registry {
	return &Registry{entities: make(map[string]*ir.EntitySpec)}
}

// Version returns the schema version of the last successful Apply.
func (r *Registry) Version() ir.SchemaVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Resolve looks up an entity by its qualified name ("namespace.Entity"
// or a bare name for the empty namespace).
func (r *Registry) Resolve(qualified string) (*ir.EntitySpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.entities[qualified]
	return spec, ok
}

// Entities returns every entity currently declared, in no particular
// order.
func (r *Registry) Entities() []*ir.EntitySpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ir.EntitySpec, 0, len(r.entities))
	for _, spec := range r.entities {
		out = append(out, spec)
	}
	return out
}

// Apply parses a data-model document and merges it into the registry,
// bumping the schema version on success. Every entity previously
// declared must still appear in src (ErrMissingEntity otherwise); a
// field previously declared must still appear with the same scalar
// type, kind, and reference target (ErrFieldTypeChanged) and may only
// go from required to nullable or gain a default, never the reverse
// without one (ErrMissingDefaultValue). New entities and fields are
// added outright, subject to the same per-field default rule
// (ErrMissingDefaultValue). Grounded on
// original_source/src/database/query_language/data_model.rs's
// `DataModel::update`/`Entity::update`.
func (r *Registry) Apply(src string) error {
	doc, err := lang.ParseDataModel(src)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nextVersion := r.version + 1
	incoming := make(map[string]*ir.EntitySpec)
	seenInDoc := make(map[string]bool)

	for _, ns := range doc.Namespaces {
		for _, entDecl := range ns.Entities {
			qualified := ir.QualifiedName(ns.Name, entDecl.Name)
			if seenInDoc[qualified] {
				return newError(ErrDuplicateEntity, qualified, "", "entity declared twice in the same document")
			}
			seenInDoc[qualified] = true

			spec, err := buildEntitySpec(ns.Name, entDecl, nextVersion)
			if err != nil {
				return err
			}
			incoming[qualified] = spec
		}
	}

	if err := resolveReferences(incoming, r.entities); err != nil {
		return err
	}

	merged := make(map[string]*ir.EntitySpec, len(r.entities)+len(incoming))
	for name, old := range r.entities {
		newSpec, ok := incoming[name]
		if !ok {
			return newError(ErrMissingEntity, name, "", "update omitted previously declared entity")
		}
		updated, err := mergeEntity(old, newSpec)
		if err != nil {
			return err
		}
		merged[name] = updated
		delete(incoming, name)
	}
	for name, spec := range incoming {
		if err := checkNewFieldDefaults(spec); err != nil {
			return err
		}
		merged[name] = spec
	}

	r.entities = merged
	r.version = nextVersion
	return nil
}

// resolveReferences checks that every ref/ref-array field in incoming
// resolves to an entity in either incoming or already (the registry's
// current contents) — a reference may point forward to a sibling
// entity declared in the same document.
func resolveReferences(incoming, already map[string]*ir.EntitySpec) error {
	for qualified, spec := range incoming {
		for _, f := range spec.Fields {
			if f.Kind != ir.KindRef && f.Kind != ir.KindRefArray {
				continue
			}
			if _, ok := incoming[f.RefEntity]; ok {
				continue
			}
			if _, ok := already[f.RefEntity]; ok {
				continue
			}
			return newError(ErrDanglingReference, qualified, f.Name, "references unknown entity %q", f.RefEntity)
		}
	}
	return nil
}

// checkNewFieldDefaults enforces that a brand-new entity's required
// fields either are nullable or carry a default — there are no
// existing rows to backfill, but uniformity with evolution keeps the
// rule simple to explain.
func checkNewFieldDefaults(spec *ir.EntitySpec) error {
	for _, f := range spec.Fields {
		if f.Kind == ir.KindScalar && !f.Nullable && f.Default == nil {
			return newError(ErrMissingDefaultValue, spec.Name, f.Name, "new required field needs a default value")
		}
	}
	return nil
}

// mergeEntity applies Entity::update's evolution rules: deprecation
// flag, full-text fields, and indices are replaced wholesale; fields
// are matched by name and may only loosen (required -> nullable, or
// gain/change a default), never change scalar type or reference
// target.
func mergeEntity(old, incoming *ir.EntitySpec) (*ir.EntitySpec, error) {
	merged := &ir.EntitySpec{
		Name:              old.Name,
		Deprecated:        incoming.Deprecated,
		FullTextIndex:     incoming.FullTextIndex,
		Indices:           incoming.Indices,
		DeclaredAtVersion: old.DeclaredAtVersion,
	}

	incomingFields := make(map[string]ir.FieldSpec, len(incoming.Fields))
	for _, f := range incoming.Fields {
		incomingFields[f.Name] = f
	}

	for _, oldField := range old.Fields {
		newField, ok := incomingFields[oldField.Name]
		if !ok {
			return nil, newError(ErrMissingField, old.Name, oldField.Name, "update omitted previously declared field")
		}
		if newField.Kind != oldField.Kind || newField.Scalar != oldField.Scalar || newField.RefEntity != oldField.RefEntity {
			return nil, newError(ErrFieldTypeChanged, old.Name, oldField.Name, "field type cannot change once declared")
		}
		if oldField.Nullable && !newField.Nullable && newField.Default == nil {
			return nil, newError(ErrMissingDefaultValue, old.Name, oldField.Name, "field went from nullable to required with no default")
		}
		merged.Fields = append(merged.Fields, newField)
		delete(incomingFields, oldField.Name)
	}
	for _, f := range incoming.Fields {
		if _, stillNew := incomingFields[f.Name]; !stillNew {
			continue
		}
		if f.Kind == ir.KindScalar && !f.Nullable && f.Default == nil {
			return nil, newError(ErrMissingDefaultValue, old.Name, f.Name, "new required field needs a default value")
		}
		merged.Fields = append(merged.Fields, f)
	}

	return merged, nil
}
