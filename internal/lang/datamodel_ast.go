package lang

import "github.com/roach88/meshroom/internal/ir"

// The data-model DSL declares namespaces of entities:
//
//	Ns {
//	    @deprecated Person {
//	        name : String,
//	        surname : String nullable,
//	        child : [Ns.Person],
//	        mother : ns.Person,
//	        index(name, surname),
//	    }
//	}
//
// grounded on original_source/src/database/query_language/data_model_parser.rs
// and the examples in data_model_parser_test.rs.

// FieldDecl is one field line inside an entity block.
type FieldDecl struct {
	Name       string
	Scalar     ir.ScalarType
	Kind       ir.FieldKind // KindScalar, KindRef, KindRefArray
	RefEntity  string       // set when Kind != KindScalar
	Nullable   bool
	Default    ir.Value // nil Default means "no default"
	Deprecated bool
	Pos        Position
}

// IndexDecl is an `index(f1, f2, ...)` line.
type IndexDecl struct {
	Fields []string
	Pos    Position
}

// EntityDecl is one `Name { ... }` block within a namespace.
type EntityDecl struct {
	Name       string
	Fields     []FieldDecl
	Indices    []IndexDecl
	FullText   []string // fields named by a `fulltext(...)` directive
	Deprecated bool
	Pos        Position
}

// NamespaceDecl is a `Ns { entity... }` top-level block.
type NamespaceDecl struct {
	Name     string
	Entities []EntityDecl
	Pos      Position
}

// DataModelDocument is the root of a parsed data-model DSL document: zero
// or more namespace blocks.
type DataModelDocument struct {
	Namespaces []NamespaceDecl
}
