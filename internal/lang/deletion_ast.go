package lang

// The deletion DSL lists entities and array-reference fields to strip
// from an entity, addressed by declared `$variable` ids:
//
//	deletion delete_person ($id, $id2, $id3) {
//	    Person {
//	        $id,
//	        parent[$id2],
//	        pet[],
//	    }
//	    Pet {
//	        $id3,
//	    }
//	}
//
// `field[]` with no variable removes every element of an array
// reference field; `field[$var]` removes only the element referencing
// `$var`. Entity- and field-existence checks against a schema happen
// one layer up, not here (grounded on
// original_source/src/database/query_language/deletion.rs, which
// performs the same split between syntax and data-model validation).

// ReferenceDeletion is one `field[...]` line inside an entity block.
type ReferenceDeletion struct {
	Name  string
	IDVar string // empty means "remove every element"
	Pos   Position
}

// EntityDeletion is one `EntityName { $id, field[...]... }` block.
type EntityDeletion struct {
	EntityName string
	IDVar      string
	References []ReferenceDeletion
	Pos        Position
}

// DeletionDocument is the root of a parsed deletion: a named deletion
// declaring its `$variable`s up front, followed by one or more entity
// blocks.
type DeletionDocument struct {
	Name       string
	Variables  []string
	Entities   []EntityDeletion
}
