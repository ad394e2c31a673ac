package meshroom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/lang"
	"github.com/roach88/meshroom/internal/queryir"
)

// Mutate applies a parsed mutation (spec.md §6 `mutate(dsl, params)`,
// §4.6) and returns the row id assigned to each top-level aliased
// entity block.
func (h *Host) Mutate(ctx context.Context, room, dsl string, params map[string]any) (map[string]string, error) {
	doc, err := lang.ParseMutation(dsl)
	if err != nil {
		return nil, newError(ErrCodeParse, room, "", err)
	}
	vars, err := paramsToVars(params)
	if err != nil {
		return nil, newError(ErrCodeParse, room, "", err)
	}
	ids, err := h.mutate.Apply(ctx, doc, vars, room)
	if err != nil {
		return nil, classifyMutationError(room, err)
	}
	return ids, nil
}

// Delete applies a parsed deletion (spec.md §6 `delete(dsl, params)`,
// §4.10's Tombstone semantics extended to array-reference pruning).
func (h *Host) Delete(ctx context.Context, room, dsl string, params map[string]any) error {
	doc, err := lang.ParseDeletion(dsl)
	if err != nil {
		return newError(ErrCodeParse, room, "", err)
	}
	vars, err := paramsToVars(params)
	if err != nil {
		return newError(ErrCodeParse, room, "", err)
	}
	if err := h.deleter.Apply(ctx, doc, vars, room); err != nil {
		return classifyMutationError(room, err)
	}
	return nil
}

// classifyMutationError maps internal/mutation and internal/deletion's
// plain fmt.Errorf failures onto the host API's error taxonomy. Neither
// executor package returns a typed error today (they are pure in-process
// algorithms with no reason to carry the host-API-facing Error type
// themselves); this is the one seam where their messages are classified
// for a caller that wants to branch on Code rather than substring-match.
func classifyMutationError(room string, err error) error {
	// internal/auth.Engine.Allowed's negative path and internal/store's
	// row-rejected path both produce distinct, stable message substrings
	// (see internal/mutation/executor.go and internal/deletion/executor.go);
	// this is a deliberate, narrow match against our own two packages'
	// own error text, not a generic heuristic.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not authorized"):
		return newError(ErrCodeUnauthorized, room, "", err)
	case strings.Contains(msg, "was rejected by the store"), strings.Contains(msg, "does not exist"):
		return newError(ErrCodeConflict, room, "", err)
	default:
		return newError(ErrCodeInternal, room, "", err)
	}
}

// Query runs a parsed query (spec.md §6 `query(dsl, params)`) and
// returns a JSON-ready document keyed by each top-level selection's
// user-assigned alias, matching spec.md §6's result shape exactly.
func (h *Host) Query(ctx context.Context, room, dsl string, params map[string]any) (map[string]any, error) {
	doc, err := lang.ParseQuery(dsl)
	if err != nil {
		return nil, newError(ErrCodeParse, room, "", err)
	}
	vars, err := paramsToVars(params)
	if err != nil {
		return nil, newError(ErrCodeParse, room, "", err)
	}

	selects, err := queryir.Plan(doc, h.reg, vars, []string{room})
	if err != nil {
		return nil, newError(ErrCodeSchemaViolation, room, "", err)
	}

	// Every entity the planned tree reaches needs its own read check, not
	// just the top-level selection's: a nested selection through a
	// reference field reads a second entity whose Room rights can differ
	// from the parent's (internal/auth.Engine.Allowed is per-entity).
	now := time.Now().UnixMilli()
	for _, entity := range queryir.EntitiesReached(selects) {
		allowed, err := h.authz.Allowed(ctx, h.identity.SigningPublic, room, entity, auth.ActionRead, now)
		if err != nil {
			return nil, newError(ErrCodeInternal, room, entity, err)
		}
		if !allowed {
			return nil, newError(ErrCodeUnauthorized, room, entity, fmt.Errorf("not authorized to read %s in room %s", entity, room))
		}
	}

	result := make(map[string]any, len(doc.Selections))
	for i, sel := range doc.Selections {
		rows, err := h.st.ExecuteSelect(ctx, selects[i])
		if err != nil {
			return nil, newError(ErrCodeInternal, room, sel.Entity, err)
		}
		alias := sel.Alias
		if alias == "" {
			alias = sel.Entity
		}
		result[alias] = rows
	}
	return result, nil
}
