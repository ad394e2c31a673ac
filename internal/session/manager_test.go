package session

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"net"
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
	"github.com/stretchr/testify/require"
)

func TestSelfSignedCertPinsIdentityKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cert, err := selfSignedCert(priv)
	require.NoError(t, err)

	cfg := pinnedTLSConfig(cert, pub)
	require.NoError(t, cfg.VerifyPeerCertificate(cert.Certificate, nil))
}

func TestPinnedTLSConfigRejectsWrongPeer(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	cert, err := selfSignedCert(priv)
	require.NoError(t, err)

	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := pinnedTLSConfig(cert, otherPub)
	require.Error(t, cfg.VerifyPeerCertificate(cert.Certificate, nil))
}

func TestRoomsDigestIsOrderIndependent(t *testing.T) {
	require.Equal(t, roomsDigest([]string{"a", "b", "c"}), roomsDigest([]string{"c", "a", "b"}))
	require.NotEqual(t, roomsDigest([]string{"a", "b"}), roomsDigest([]string{"a", "b", "c"}))
}

func TestRegisterDedupKeepsConventionalSession(t *testing.T) {
	salt, err := crypto.LoadOrCreateSalt(t.TempDir())
	require.NoError(t, err)
	lowID, err := crypto.DeriveIdentity([]byte("low"), salt)
	require.NoError(t, err)
	highID, err := crypto.DeriveIdentity([]byte("high"), salt)
	require.NoError(t, err)
	if bytes.Compare(lowID.SigningPublic, highID.SigningPublic) > 0 {
		lowID, highID = highID, lowID
	}

	m := &Manager{identity: lowID, sessions: make(map[string]*activeSession)}

	cancelled := false
	ok := m.register(highID.SigningPublic, true, func() {})
	require.True(t, ok, "first registration always succeeds")

	ok = m.register(highID.SigningPublic, false, func() { cancelled = true })
	require.False(t, ok, "local is lower and dialed=true already won; a non-dialed second attempt must lose")
	require.False(t, cancelled)

	m2 := &Manager{identity: lowID, sessions: make(map[string]*activeSession)}
	ok = m2.register(highID.SigningPublic, false, func() { cancelled = true })
	require.True(t, ok, "first registration always succeeds regardless of convention")
	ok = m2.register(highID.SigningPublic, true, func() {})
	require.True(t, ok, "a conventional (dialed-by-lower-key) attempt displaces a non-conventional one")
	require.True(t, cancelled)
}

const sessionTestModel = `
	chat {
		Person {
			name : String,
			index(name),
		}
	}
`

type staticRooms []string

func (s staticRooms) Rooms() []string { return []string(s) }

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
	require.NoError(t, reg.Apply(auth.SystemSchema+sessionTestModel))

	path := filepath.Join(t.TempDir(), "session-test.db")
	st, err := store.Open(path, reg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	salt, err := crypto.LoadOrCreateSalt(t.TempDir())
	require.NoError(t, err)
	identity, err := crypto.DeriveIdentity([]byte(keyMaterial), salt)
	require.NoError(t, err)

	return &peerFixture{st: st, reg: reg, authz: auth.NewEngine(st), bus: eventbus.NewBus(16), identity: identity}
}

type busPublisher struct{ bus *eventbus.Bus }

func (p *busPublisher) Publish(e mutation.ChangeEvent) {
	p.bus.Publish(eventbus.Event{Kind: eventbus.DataChanged, Room: e.RoomID, Entity: e.Entity, RowID: e.RowID, Origin: e.Origin})
}

// TestDialServeRoundTripSyncsBootstrapAndApplicationRow spins up a real
// loopback TLS+WebSocket listener and dials it, exercising the full
// handshake (cert pinning, Hello/RoomList, Room-intersection) and one
// reconciliation round end to end, the same scenario
// internal/sync/round_test.go covers over an in-memory pipe but here
// driven through Manager.Serve/Dial.
func TestDialServeRoundTripSyncsBootstrapAndApplicationRow(t *testing.T) {
	const room = "room-1"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newPeerFixture(t, "session-peer-a")
	b := newPeerFixture(t, "session-peer-b")
	appKeyHash := []byte("test-app-key-hash")

	require.NoError(t, auth.Bootstrap(ctx, a.st, a.reg, room, a.identity.SigningPrivate, 1000, false))

	exec := mutation.New(a.st, a.reg, a.authz, a.identity, &busPublisher{bus: a.bus})
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

	settings := DefaultSettings()
	settings.PingInterval = 0

	mgrA := NewManager(a.identity, appKeyHash, a.st, a.reg, a.authz, a.bus, staticRooms{room}, settings)
	mgrB := NewManager(b.identity, appKeyHash, b.st, b.reg, b.authz, b.bus, staticRooms{room}, settings)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- mgrB.ServeListener(ctx, ln) }()

	dialErrCh := make(chan error, 1)
	go func() { dialErrCh <- mgrA.Dial(ctx, "wss://"+addr, b.identity.SigningPublic) }()

	deadline := time.Now().Add(5 * time.Second)
	var personRows []map[string]any
	for time.Now().Before(deadline) {
		personRows, err = b.st.ExecuteSelect(ctx, &queryir.Select{
			From:       "chat.Person",
			RoomFilter: []string{room},
			Projections: []queryir.Projection{
				queryir.FieldProjection{Source: "name", Alias: "name"},
			},
		})
		require.NoError(t, err)
		if len(personRows) == 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.Len(t, personRows, 1)
	require.Equal(t, "Ada", personRows[0]["name"])

	require.NoError(t, <-dialErrCh)
	cancel()
	<-serveErrCh
}
