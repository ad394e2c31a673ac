// Package schema holds the registry of declared namespaces and
// entities: it turns a parsed data-model document (internal/lang) into
// ir.EntitySpec/ir.Namespace values, and governs how a data model is
// allowed to evolve over time.
//
// Grounded on
// original_source/src/database/query_language/data_model.rs: entity
// and field declaration, the short-field-name reservation scheme, and
// the update()/Entity::update() evolution rules (a field's scalar type
// and reference target can never change; a newly-required field must
// carry a default; removing a field requires deprecating it instead).
package schema
