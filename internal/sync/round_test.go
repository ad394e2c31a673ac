package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/eventbus"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
	"github.com/roach88/meshroom/internal/mutation"
	"github.com/roach88/meshroom/internal/queryir"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
	"github.com/roach88/meshroom/internal/sync/wire"
	"github.com/stretchr/testify/require"
)

const testModel = `
	chat {
		Person {
			name : String,
			index(name),
		}
		Message {
			body : String,
			sender : chat.Person,
			index(sender),
		}
	}
`

// pipeTransport implements Transport over a pair of buffered channels,
// one per direction; two pipeTransports sharing a crossed pair of
// channels let two Reconcilers run a round concurrently without a real
// network.
type pipeTransport struct {
	out chan<- frame
	in  <-chan frame
}

type frame struct {
	kind    wire.Kind
	payload []byte
}

func newPipePair() (Transport, Transport) {
	ab := make(chan frame, 64)
	ba := make(chan frame, 64)
	return &pipeTransport{out: ab, in: ba}, &pipeTransport{out: ba, in: ab}
}

func (p *pipeTransport) Send(kind wire.Kind, payload []byte) error {
	p.out <- frame{kind: kind, payload: payload}
	return nil
}

func (p *pipeTransport) Recv() (wire.Kind, []byte, error) {
	f := <-p.in
	return f.kind, f.payload, nil
}

// busPublisher adapts an eventbus.Bus to mutation.Publisher so a test
// peer's local writes surface the same way they would through the host
// API's own wiring.
type busPublisher struct {
	bus  *eventbus.Bus
	room string
}

func (p *busPublisher) Publish(e mutation.ChangeEvent) {
	p.bus.Publish(eventbus.Event{Kind: eventbus.DataChanged, Room: e.RoomID, Entity: e.Entity, RowID: e.RowID, Origin: e.Origin})
}

type peerFixture struct {
	st       *store.Store
	reg      *schema.Registry
	authz    *auth.Engine
	bus      *eventbus.Bus
	identity *crypto.Identity
}

func newPeerFixture(t *testing.T, keyMaterial string) *peerFixture {
	t.Helper()

	reg := schema.New()
	require.NoError(t, reg.Apply(auth.SystemSchema+testModel))

	path := filepath.Join(t.TempDir(), "sync-test.db")
	st, err := store.Open(path, reg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	salt, err := crypto.LoadOrCreateSalt(t.TempDir())
	require.NoError(t, err)
	identity, err := crypto.DeriveIdentity([]byte(keyMaterial), salt)
	require.NoError(t, err)

	return &peerFixture{st: st, reg: reg, authz: auth.NewEngine(st), bus: eventbus.NewBus(16), identity: identity}
}

func epochSelect(room string) *queryir.Select {
	return &queryir.Select{
		From:       auth.EntityEpoch,
		RoomFilter: []string{room},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
		},
	}
}

func personSelect(room string) *queryir.Select {
	return &queryir.Select{
		From:       "chat.Person",
		RoomFilter: []string{room},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "name", Alias: "name"},
		},
	}
}

// TestRunReplicatesBootstrapAndApplicationRowsToFreshPeer exercises the
// scenario round.go's epoch/membership authorization exemption exists
// for: peer A bootstraps a Room and authors one application row; peer B
// has never seen the Room. A single reconciliation round must land the
// Room's epoch and membership rows in B's store (on signature alone)
// and, because B can now evaluate A's rights, the application row too.
func TestRunReplicatesBootstrapAndApplicationRowsToFreshPeer(t *testing.T) {
	const room = "room-1"
	ctx := context.Background()

	a := newPeerFixture(t, "peer-a")
	b := newPeerFixture(t, "peer-b")

	require.NoError(t, auth.Bootstrap(ctx, a.st, a.reg, room, a.identity.SigningPrivate, 1000, false))

	exec := mutation.New(a.st, a.reg, a.authz, a.identity, &busPublisher{bus: a.bus, room: room})
	doc, err := lang.ParseMutation(`
		mutation m {
			created : chat.Person {
				name : $name
			}
		}
	`)
	require.NoError(t, err)
	_, err = exec.Apply(ctx, doc, map[string]ir.Value{"name": ir.VString("Ada")}, room)
	require.NoError(t, err)

	tA, tB := newPipePair()
	rA := NewReconciler(a.st, a.reg, a.authz, a.bus, a.identity.SigningPublic, 0, 0)
	rB := NewReconciler(b.st, b.reg, b.authz, b.bus, b.identity.SigningPublic, 0, 0)

	sub := b.bus.Subscribe()
	defer sub.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- rA.Run(ctx, room, tA, true) }()
	go func() { errCh <- rB.Run(ctx, room, tB, false) }()

	require.NoError(t, <-errCh)
	require.NoError(t, <-errCh)

	epochRows, err := b.st.ExecuteSelect(ctx, epochSelect(room))
	require.NoError(t, err)
	require.Len(t, epochRows, 1)

	personRows, err := b.st.ExecuteSelect(ctx, personSelect(room))
	require.NoError(t, err)
	require.Len(t, personRows, 1)
	require.Equal(t, "Ada", personRows[0]["name"])

	sawRemote := false
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		evCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		ev, err := sub.Next(evCtx)
		cancel()
		if err != nil {
			break
		}
		if ev.Kind == eventbus.DataChanged && ev.Origin == OriginRemote {
			sawRemote = true
			break
		}
	}
	require.True(t, sawRemote, "expected at least one DataChanged event with Origin=remote on the fresh peer's bus")
}

// TestCommitAdvancesCursorForRowsThatLoseTheirConflict exercises
// commit() directly: a row that loses the store's LWW conflict against
// an already-stored winner must still advance its author's cursor, or
// advertiseItems keeps re-offering it every subsequent round.
func TestCommitAdvancesCursorForRowsThatLoseTheirConflict(t *testing.T) {
	const room = "room-cursor"
	ctx := context.Background()

	p := newPeerFixture(t, "peer-cursor")
	r := NewReconciler(p.st, p.reg, p.authz, p.bus, p.identity.SigningPublic, 0, 0)

	author := []byte("author-bytes-0000000000000000000")
	winner := &ir.Row{
		ID: "p1", RoomID: room, EntityName: "chat.Person", MDate: 10,
		Author: author, Signature: []byte("sig"), SchemaVersion: 1,
		Fields: map[string]ir.Value{"name": ir.VString("Ada")},
	}
	applied, err := p.st.ApplyRows(ctx, []*ir.Row{winner})
	require.NoError(t, err)
	require.True(t, applied[0])

	loser := &ir.Row{
		ID: "p1", RoomID: room, EntityName: "chat.Person", MDate: 5,
		Author: author, Signature: []byte("sig"), SchemaVersion: 1,
		Fields: map[string]ir.Value{"name": ir.VString("stale")},
	}
	require.NoError(t, r.commit(ctx, room, []*ir.Row{loser}))

	cur, ok, err := p.st.ReadCursor(ctx, room, author)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.Cursor{MDate: 5, ID: "p1"}, cur)
}

// TestRunIsIdempotentWhenAlreadyInSync runs a second round back to back
// and expects no error and no duplicate epoch rows.
func TestRunIsIdempotentWhenAlreadyInSync(t *testing.T) {
	const room = "room-2"
	ctx := context.Background()

	a := newPeerFixture(t, "peer-c")
	b := newPeerFixture(t, "peer-d")
	require.NoError(t, auth.Bootstrap(ctx, a.st, a.reg, room, a.identity.SigningPrivate, 1000, false))

	rA := NewReconciler(a.st, a.reg, a.authz, a.bus, a.identity.SigningPublic, 0, 0)
	rB := NewReconciler(b.st, b.reg, b.authz, b.bus, b.identity.SigningPublic, 0, 0)

	for i := 0; i < 2; i++ {
		tA, tB := newPipePair()
		errCh := make(chan error, 2)
		go func() { errCh <- rA.Run(ctx, room, tA, true) }()
		go func() { errCh <- rB.Run(ctx, room, tB, false) }()
		require.NoError(t, <-errCh)
		require.NoError(t, <-errCh)
	}

	epochRows, err := b.st.ExecuteSelect(ctx, epochSelect(room))
	require.NoError(t, err)
	require.Len(t, epochRows, 1)
}
