package ir

// ScalarType enumerates the scalar field types a data-model declaration
// may use (spec.md §3 "Scalar types").
type ScalarType int

const (
	TInt ScalarType = iota + 1
	TFloat
	TBool
	TString
	TBase64
	TJSON
)

func (t ScalarType) String() string {
	switch t {
	case TInt:
		return "Int"
	case TFloat:
		return "Float"
	case TBool:
		return "Boolean"
	case TString:
		return "String"
	case TBase64:
		return "Base64"
	case TJSON:
		return "Json"
	default:
		return "Unknown"
	}
}

// FieldKind distinguishes a scalar field from an entity reference field.
type FieldKind int

const (
	KindScalar FieldKind = iota + 1
	KindRef
	KindRefArray
)

// FieldSpec is one field of an entity declaration.
type FieldSpec struct {
	Name       string
	Kind       FieldKind
	Scalar     ScalarType // meaningful when Kind == KindScalar
	RefEntity  string     // meaningful when Kind == KindRef or KindRefArray; qualified entity name
	Nullable   bool
	Default    Value // nil if no default
	Deprecated bool
}

// IndexSpec is an `index(col1, col2, ...)` declaration.
type IndexSpec struct {
	Fields []string
}

// EntitySpec is a compiled entity declaration (spec.md §3 "Entity").
type EntitySpec struct {
	Name               string // qualified, e.g. "chat.Message"
	Fields             []FieldSpec
	Indices            []IndexSpec
	FullTextIndex      []string // fields covered by a `fulltext(...)` declaration; nil if none
	Deprecated         bool
	DeclaredAtVersion  SchemaVersion
}

// FieldByName returns the field spec for name, or (FieldSpec{}, false).
func (e *EntitySpec) FieldByName(name string) (FieldSpec, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Namespace groups entities declared under one dotted prefix, mirroring
// the data-model DSL's `namespace chat { ... }` blocks.
type Namespace struct {
	Name     string
	Entities []EntitySpec
}

// QualifiedName joins a namespace and a bare entity name, e.g.
// QualifiedName("chat", "Message") == "chat.Message". An empty namespace
// yields the bare name unchanged.
func QualifiedName(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
