package schema

import (
	"strings"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
)

// reservedFieldNames are row-level fields every entity carries
// implicitly (internal/ir.Row); a data-model field may not reuse one.
var reservedFieldNames = map[string]bool{
	"id": true, "room_id": true, "mdate": true, "author": true,
	"deleted": true, "schema_version": true, "signature": true,
}

// reservedTypeKeywords are scalar-type keywords: an entity or field may
// not be named after one (original_source's `is_reserved`).
var reservedTypeKeywords = map[string]bool{
	"boolean": true, "float": true, "integer": true,
	"string": true, "base64": true, "json": true,
}

func isReservedTypeKeyword(name string) bool {
	return reservedTypeKeywords[strings.ToLower(name)]
}

// buildEntitySpec converts one parsed EntityDecl into an ir.EntitySpec.
// Reference targets are not required to already exist in the registry;
// resolveReferences (called after every entity in the document has been
// built) checks that they resolve somewhere in the combined namespace.
func buildEntitySpec(namespace string, decl lang.EntityDecl, version ir.SchemaVersion) (*ir.EntitySpec, error) {
	qualified := ir.QualifiedName(namespace, decl.Name)
	if isReservedTypeKeyword(decl.Name) {
		return nil, newError(ErrReservedEntityName, qualified, "", "entity name %q collides with a scalar type keyword", decl.Name)
	}

	spec := &ir.EntitySpec{
		Name:              qualified,
		Deprecated:        decl.Deprecated,
		FullTextIndex:     decl.FullText,
		DeclaredAtVersion: version,
	}

	seen := map[string]bool{}
	for _, f := range decl.Fields {
		if seen[f.Name] {
			return nil, newError(ErrDuplicateField, qualified, f.Name, "field %q declared twice", f.Name)
		}
		seen[f.Name] = true
		if reservedFieldNames[f.Name] {
			return nil, newError(ErrReservedFieldName, qualified, f.Name, "field name %q shadows a system field", f.Name)
		}
		if isReservedTypeKeyword(f.Name) {
			return nil, newError(ErrReservedEntityName, qualified, f.Name, "field name %q collides with a scalar type keyword", f.Name)
		}

		field := ir.FieldSpec{
			Name:       f.Name,
			Kind:       f.Kind,
			Nullable:   f.Nullable,
			Deprecated: f.Deprecated,
		}
		switch f.Kind {
		case ir.KindScalar:
			field.Scalar = f.Scalar
			if f.Default != nil {
				scalar, ok := ir.ScalarTypeOf(f.Default)
				if !ok || scalar != f.Scalar {
					return nil, newError(ErrInvalidDefaultValue, qualified, f.Name,
						"default value does not match field type %s", f.Scalar)
				}
				field.Default = f.Default
			}
		case ir.KindRef, ir.KindRefArray:
			field.RefEntity = qualifyRef(namespace, f.RefEntity)
			if f.Default != nil {
				return nil, newError(ErrRefDefaultNotAllowed, qualified, f.Name, "reference fields cannot declare a default value")
			}
		}
		spec.Fields = append(spec.Fields, field)
	}

	for _, idx := range decl.Indices {
		for _, fname := range idx.Fields {
			if _, ok := spec.FieldByName(fname); !ok {
				return nil, newError(ErrUnknownIndexField, qualified, fname, "index names unknown field %q", fname)
			}
		}
		spec.Indices = append(spec.Indices, ir.IndexSpec{Fields: idx.Fields})
	}
	for _, fname := range spec.FullTextIndex {
		if _, ok := spec.FieldByName(fname); !ok {
			return nil, newError(ErrUnknownIndexField, qualified, fname, "fulltext index names unknown field %q", fname)
		}
	}

	return spec, nil
}

// qualifyRef resolves a reference field's type name to a fully
// qualified "namespace.Entity" form: a dotted name is used as-is, a
// bare name is assumed to live in the declaring namespace.
func qualifyRef(namespace, refName string) string {
	if strings.Contains(refName, ".") {
		return refName
	}
	return ir.QualifiedName(namespace, refName)
}
