package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/deletion"
	"github.com/roach88/meshroom/internal/eventbus"
	"github.com/roach88/meshroom/internal/invite"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
	"github.com/roach88/meshroom/internal/mutation"
	"github.com/roach88/meshroom/internal/queryir"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
	syncpkg "github.com/roach88/meshroom/internal/sync"
)

// harnessSalt is a fixed, non-secret salt so a peer's derived identity
// is the same on every run of the same scenario (spec.md §8's scenarios
// must be reproducible without a real random source).
var harnessSalt = []byte("meshroom-harness-fixed-salt-000000000000")

// Peer is one participant in a scenario: its own store, registry,
// authorization engine, identity, and the mutation/deletion executors
// a meshroom.Host would wire, built directly from internal packages so
// the harness can inspect raw rows for invariant checks that the host
// API façade does not expose (e.g. signatures, epochs).
type Peer struct {
	Name     string
	Identity *crypto.Identity
	St       *store.Store
	Reg      *schema.Registry
	Authz    *auth.Engine
	Bus      *eventbus.Bus
	Mutate   *mutation.Executor
	Delete   *deletion.Executor
}

func newPeer(t testingT, dir, name, model string) *Peer {
	reg := schema.New()
	if err := reg.Apply(auth.SystemSchema + model); err != nil {
		t.Fatalf("peer %s: apply schema: %v", name, err)
	}

	st, err := store.Open(filepath.Join(dir, name+".db"), reg)
	if err != nil {
		t.Fatalf("peer %s: open store: %v", name, err)
	}

	identity, err := crypto.DeriveIdentity([]byte("harness-peer-"+name), harnessSalt)
	if err != nil {
		t.Fatalf("peer %s: derive identity: %v", name, err)
	}

	authz := auth.NewEngine(st)
	bus := eventbus.NewBus(64)
	p := &Peer{Name: name, Identity: identity, St: st, Reg: reg, Authz: authz, Bus: bus}
	p.Mutate = mutation.New(st, reg, authz, identity, nil)
	p.Delete = deletion.New(st, reg, authz, identity, nil)
	return p
}

// testingT is the subset of *testing.T the harness needs, so Run does
// not import the testing package into non-test callers.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Run provisions every scenario peer, executes its flow in order, and
// evaluates its assertions, returning the accumulated Result.
func Run(t testingT, dir string, scenario *Scenario) *Result {
	t.Helper()
	result := NewResult()

	peers := make(map[string]*Peer, len(scenario.Peers))
	for _, ps := range scenario.Peers {
		peers[ps.Name] = newPeer(t, dir, ps.Name, scenario.Model)
	}
	defer func() {
		for _, p := range peers {
			p.St.Close()
		}
	}()

	rooms := make(map[string]string) // label -> room id, shared across peers
	vars := make(map[string]ir.Value)

	for _, step := range scenario.Flow {
		outcome := execStep(peers, rooms, vars, step)
		result.AddStep(step.As, outcome)
		if step.ExpectError != "" {
			if outcome.Err == nil || !strings.Contains(outcome.Err.Error(), step.ExpectError) {
				result.AddError(fmt.Sprintf("step %s: expected error containing %q, got %v", describeStep(step), step.ExpectError, outcome.Err))
			}
			continue
		}
		if outcome.Err != nil {
			result.AddError(fmt.Sprintf("step %s: %v", describeStep(step), outcome.Err))
		}
	}

	for i, a := range scenario.Assertions {
		if err := evalAssertion(result, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return result
}

func describeStep(s Step) string {
	if s.Peer != "" {
		return fmt.Sprintf("%s/%s", s.Peer, s.Action)
	}
	return s.Action
}

func execStep(peers map[string]*Peer, rooms map[string]string, vars map[string]ir.Value, step Step) StepOutcome {
	ctx := context.Background()
	now := time.Now().UnixMilli()
	outcome := StepOutcome{Peer: step.Peer, Action: step.Action}

	switch step.Action {
	case "private_room":
		p := peers[step.Peer]
		room := ulidLike(step.Peer, len(rooms))
		if err := auth.Bootstrap(ctx, p.St, p.Reg, room, p.Identity.SigningPrivate, now, true); err != nil {
			outcome.Err = err
			return outcome
		}
		rooms[step.As] = room
		outcome.Value = room

	case "shared_room":
		p := peers[step.Peer]
		room := ulidLike(step.Peer, len(rooms))
		if err := auth.Bootstrap(ctx, p.St, p.Reg, room, p.Identity.SigningPrivate, now, false); err != nil {
			outcome.Err = err
			return outcome
		}
		rooms[step.As] = room
		outcome.Value = room

	case "invite":
		p := peers[step.Peer]
		room := rooms[step.Room]
		token, err := invite.Generate(room, step.Role, p.Identity.SigningPrivate, nil, time.Hour)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		vars["token:"+step.As] = ir.VString(token)
		outcome.Value = token

	case "accept":
		p := peers[step.Peer]
		admin := peers[step.Admin]
		tokenVal := vars["token:"+step.Token]
		tokenStr, _ := tokenVal.(ir.VString)
		claims, _, err := invite.ParseSelfDescribing(string(tokenStr), p.Identity.SigningPublic)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		if err := invite.Admit(ctx, admin.St, admin.Reg, claims.RoomID, admin.Identity.SigningPrivate, p.Identity.SigningPublic, claims, now); err != nil {
			outcome.Err = err
			return outcome
		}
		rooms[step.As] = claims.RoomID

	case "mutate":
		p := peers[step.Peer]
		room := rooms[step.Room]
		doc, err := lang.ParseMutation(step.DSL)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		bound, err := paramsToVars(step.Params)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		ids, err := p.Mutate.Apply(ctx, doc, bound, room)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		outcome.Value = ids

	case "delete":
		p := peers[step.Peer]
		room := rooms[step.Room]
		doc, err := lang.ParseDeletion(step.DSL)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		bound, err := paramsToVars(step.Params)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		if err := p.Delete.Apply(ctx, doc, bound, room); err != nil {
			outcome.Err = err
			return outcome
		}

	case "query":
		p := peers[step.Peer]
		room := rooms[step.Room]
		doc, err := lang.ParseQuery(step.DSL)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		bound, err := paramsToVars(step.Params)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		selects, err := queryir.Plan(doc, p.Reg, bound, []string{room})
		if err != nil {
			outcome.Err = err
			return outcome
		}
		for _, entity := range queryir.EntitiesReached(selects) {
			allowed, err := p.Authz.Allowed(ctx, p.Identity.SigningPublic, room, entity, auth.ActionRead, now)
			if err != nil {
				outcome.Err = err
				return outcome
			}
			if !allowed {
				outcome.Err = fmt.Errorf("not authorized to read %s in room %s", entity, room)
				return outcome
			}
		}
		resultRows := make(map[string]any, len(doc.Selections))
		for i, sel := range doc.Selections {
			rows, err := p.St.ExecuteSelect(ctx, selects[i])
			if err != nil {
				outcome.Err = err
				return outcome
			}
			alias := sel.Alias
			if alias == "" {
				alias = sel.Entity
			}
			resultRows[alias] = rows
		}
		outcome.Value = resultRows

	case "sync":
		a, b := peers[step.Between[0]], peers[step.Between[1]]
		room := rooms[step.Room]
		if err := runSyncRounds(ctx, a, b, room, 3); err != nil {
			outcome.Err = err
			return outcome
		}

	default:
		outcome.Err = fmt.Errorf("unknown step action %q", step.Action)
	}

	return outcome
}

func paramsToVars(params map[string]any) (map[string]ir.Value, error) {
	out := make(map[string]ir.Value, len(params))
	for name, raw := range params {
		v, err := anyToValue(raw)
		if err != nil {
			return nil, fmt.Errorf("param $%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func anyToValue(raw any) (ir.Value, error) {
	switch v := raw.(type) {
	case nil:
		return ir.VNull{}, nil
	case string:
		return ir.VString(v), nil
	case bool:
		return ir.VBool(v), nil
	case int:
		return ir.VInt(int64(v)), nil
	case int64:
		return ir.VInt(v), nil
	case float64:
		return ir.VFloat(v), nil
	default:
		return nil, fmt.Errorf("unsupported param type %T", raw)
	}
}

// ulidLike deterministically names a room from the creating peer and a
// running counter, so scenario room ids are reproducible without a real
// ULID clock.
func ulidLike(peer string, n int) string {
	return fmt.Sprintf("room-%s-%d", peer, n)
}

// runSyncRounds drives reconciliation between a and b over an in-memory
// pipe transport for exactly maxRounds rounds, grounded on internal/sync's own round_test.go pipeTransport
// fixture (the real internal/session code instead wraps the same
// internal/sync.Reconciler around a gorilla/websocket connection).
func runSyncRounds(ctx context.Context, a, b *Peer, room string, maxRounds int) error {
	ra := syncpkg.NewReconciler(a.St, a.Reg, a.Authz, a.Bus, a.Identity.SigningPublic, 0, 0)
	rb := syncpkg.NewReconciler(b.St, b.Reg, b.Authz, b.Bus, b.Identity.SigningPublic, 0, 0)

	aGoesFirst := lessPublicKey(a.Identity.SigningPublic, b.Identity.SigningPublic)

	for i := 0; i < maxRounds; i++ {
		ta, tb := newPipePair()
		errCh := make(chan error, 2)
		go func() { errCh <- ra.Run(ctx, room, ta, aGoesFirst) }()
		go func() { errCh <- rb.Run(ctx, room, tb, !aGoesFirst) }()
		if err := <-errCh; err != nil {
			return fmt.Errorf("sync round %d: %w", i, err)
		}
		if err := <-errCh; err != nil {
			return fmt.Errorf("sync round %d: %w", i, err)
		}
	}
	return nil
}

func lessPublicKey(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
