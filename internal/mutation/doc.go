// Package mutation implements spec.md §4.6's Mutation Executor: it
// accepts a parsed internal/lang.MutationDocument and a bound-variable
// set, resolves nested entity blocks into separate row writes ordered so
// referents exist before referrers, signs each row, checks every row's
// authorization under internal/auth before committing, and applies them
// to internal/store in a single transaction.
package mutation
