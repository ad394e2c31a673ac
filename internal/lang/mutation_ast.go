package lang

// The mutation DSL applies a tree of field assignments to one or more
// entities in a single transaction:
//
//	mutation mutmut {
//	    Person {
//	        id : $id
//	        name : $name
//	        parents : [{id: $father_id}, {id: $mother_id}]
//	        pet : { id : $pet_id }
//	    }
//	    person_value : Person {
//	        name : "me"
//	        age : 4200
//	    }
//	}
//
// grounded on
// original_source/src/database/query_language/mutation_parser.rs.

// MutationFieldValue is the right-hand side of one mutation field: a
// scalar/variable value, a single nested entity, or an array of nested
// entities.
type MutationFieldValue struct {
	Scalar   *ValueExpr         // set for `field: $var` / `field: literal`
	Nested   *MutationEntity    // set for `field: { ... }`
	Array    []MutationEntity   // set for `field: [{ ... }, { ... }]`
}

// MutationField is one `name : value` line inside a mutation entity
// block.
type MutationField struct {
	Name  string
	Value MutationFieldValue
	Pos   Position
}

// MutationEntity is one `[alias :] EntityName { field... }` block.
type MutationEntity struct {
	Alias  string // empty when no alias given
	Entity string
	Fields []MutationField
	Pos    Position
}

// MutationDocument is the root of a parsed mutation: a named mutation
// containing one or more top-level entity blocks.
type MutationDocument struct {
	Name     string
	Entities []MutationEntity
}
