// Package deletion implements spec.md §6's delete(dsl, params) operation:
// it accepts a parsed internal/lang.DeletionDocument and a bound-variable
// set and, for each entity block, either tombstones the named row (when
// the block names no reference fields) or rewrites the row with the
// named array-reference fields pruned (when it does), signing and
// committing the result the same way internal/mutation's Executor does.
package deletion
