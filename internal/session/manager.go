package session

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/eventbus"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
	syncpkg "github.com/roach88/meshroom/internal/sync"
	"github.com/roach88/meshroom/internal/sync/wire"
)

const protocolVersion = 1

// Settings configures timeouts and concurrency for a Manager, mirroring
// bringyour-connect/connect/transport.go's PlatformTransportSettings
// (handshake/ping/write/read timeouts, reconnect backoff) scaled down to
// this system's single-hop peer transport.
type Settings struct {
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	PingInterval       time.Duration
	ReconnectBackoff   time.Duration
	TeardownDeadline   time.Duration
	MaxConcurrentRooms int64
	BatchBytes         int
	CreditWindow       int
}

func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout:   5 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        30 * time.Second,
		PingInterval:       10 * time.Second,
		ReconnectBackoff:   5 * time.Second,
		TeardownDeadline:   5 * time.Second,
		MaxConcurrentRooms: 8,
	}
}

// RoomSet reports the Rooms this host currently belongs to; Manager asks
// it fresh at every handshake so a Room joined after a peer connects is
// still picked up without reconnecting.
type RoomSet interface {
	Rooms() []string
}

// Manager is spec.md §4.8's peer session manager: it dials and accepts
// pinned-certificate transport connections, negotiates the shared Room
// set per handshake, and runs one internal/sync.Reconciler per shared
// Room, enforcing one active session per remote peer.
type Manager struct {
	identity   *crypto.Identity
	appKeyHash []byte
	st         *store.Store
	reg        *schema.Registry
	authz      *auth.Engine
	bus        *eventbus.Bus
	rooms      RoomSet
	settings   Settings

	mu       sync.Mutex
	sessions map[string]*activeSession
}

type activeSession struct {
	peerKey      ed25519.PublicKey
	conventional bool
	cancel       context.CancelFunc
}

func NewManager(identity *crypto.Identity, appKeyHash []byte, st *store.Store, reg *schema.Registry, authz *auth.Engine, bus *eventbus.Bus, rooms RoomSet, settings Settings) *Manager {
	return &Manager{
		identity:   identity,
		appKeyHash: appKeyHash,
		st:         st,
		reg:        reg,
		authz:      authz,
		bus:        bus,
		rooms:      rooms,
		settings:   settings,
		sessions:   make(map[string]*activeSession),
	}
}

func peerKeyString(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

// localIsLower reports whether this Manager's own signing key sorts
// before peer's, the tie-break spec.md §4.8 uses both to decide which of
// two simultaneous sessions with the same peer survives and (reused by
// internal/sync) which side advertises first within a round.
func (m *Manager) localIsLower(peer ed25519.PublicKey) bool {
	return bytes.Compare(m.identity.SigningPublic, peer) < 0
}

// Dial establishes an outbound session to addr, expected to present a
// certificate pinned to expectedPeer, and blocks while one
// reconciliation round per shared Room runs over the session, returning
// once those rounds have finished or one of them fails.
func (m *Manager) Dial(ctx context.Context, addr string, expectedPeer ed25519.PublicKey) error {
	cert, err := selfSignedCert(m.identity.SigningPrivate)
	if err != nil {
		return err
	}
	dialer := &websocket.Dialer{
		TLSClientConfig:  pinnedTLSConfig(cert, expectedPeer),
		HandshakeTimeout: m.settings.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("session: dial %s: %w", addr, err)
	}
	return m.run(ctx, conn, true)
}

// Serve accepts inbound WebSocket connections on addr, pinning each to
// whatever Ed25519 key its certificate presents (learned, not known in
// advance, the way a fresh peer arrives via an internal/invite
// acceptance rather than a pre-shared address book).
func (m *Manager) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("session: listen %s: %w", addr, err)
	}
	return m.ServeListener(ctx, ln)
}

// ServeListener is Serve over an already-bound listener, letting a
// caller (or a test) pick the address itself — e.g. an ephemeral
// "127.0.0.1:0" port whose actual address is read back off the
// listener before Serve's address would otherwise be known.
func (m *Manager) ServeListener(ctx context.Context, ln net.Listener) error {
	cert, err := selfSignedCert(m.identity.SigningPrivate)
	if err != nil {
		return err
	}
	upgrader := websocket.Upgrader{HandshakeTimeout: m.settings.HandshakeTimeout}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			if err := m.run(ctx, conn, false); err != nil {
				conn.Close()
			}
		}()
	})

	srv := &http.Server{Handler: mux, TLSConfig: anyPeerTLSConfig(cert)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.settings.TeardownDeadline)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	tlsLn := tls.NewListener(ln, srv.TLSConfig)
	if err := srv.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// run performs the handshake over conn and, once a peer identity and
// shared Room set are established, runs one reconciliation round per
// shared Room (at most MaxConcurrentRooms at a time) and returns when
// they have all finished or one fails. dialed is true when this side
// initiated the connection; register uses it to decide which of two
// simultaneous sessions with the same peer survives.
func (m *Manager) run(ctx context.Context, conn *websocket.Conn, dialed bool) error {
	defer conn.Close()

	tlsConn, ok := conn.UnderlyingConn().(*tls.Conn)
	if !ok {
		return fmt.Errorf("session: connection is not TLS")
	}
	peerKey, err := peerKeyFromConnState(tlsConn.ConnectionState())
	if err != nil {
		return err
	}

	t := newWsTransport(conn, m.settings.WriteTimeout, m.settings.ReadTimeout)

	sharedRooms, err := m.exchangeHello(t, peerKey)
	if err != nil {
		return err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !m.register(peerKey, dialed, cancel) {
		t.sendBye("duplicate session, lower-pubkey-wins")
		return nil
	}
	defer m.unregister(peerKey)

	go m.pingLoop(sessCtx, t)

	goFirst := m.localIsLower(peerKey)
	sem := semaphore.NewWeighted(m.settings.MaxConcurrentRooms)
	g, gctx := errgroup.WithContext(sessCtx)
	for _, room := range sharedRooms {
		room := room
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			r := syncpkg.NewReconciler(m.st, m.reg, m.authz, m.bus, m.identity.SigningPublic, m.settings.BatchBytes, m.settings.CreditWindow)
			return r.Run(gctx, room, t, goFirst)
		})
	}
	return g.Wait()
}

// exchangeHello sends and receives Hello/RoomList, in that order on both
// sides (unlike the reconciliation rounds that follow, the handshake has
// no goFirst ambiguity: both peers always send their own Hello/RoomList
// immediately, then read the other's — two unbuffered writes never
// deadlock a full-duplex stream the way two blocking ordered reads
// would), and returns the Room IDs both sides share.
func (m *Manager) exchangeHello(t *wsTransport, peerKey ed25519.PublicKey) ([]string, error) {
	localRooms := m.rooms.Rooms()

	hello := &wire.Hello{ProtocolVersion: protocolVersion, AppKeyHash: m.appKeyHash, RoomsDigest: roomsDigest(localRooms)}
	if err := t.Send(wire.KindHello, hello.Marshal()); err != nil {
		return nil, err
	}
	if err := t.Send(wire.KindRoomList, (&wire.RoomList{RoomIDs: localRooms}).Marshal()); err != nil {
		return nil, err
	}

	kind, payload, err := t.Recv()
	if err != nil {
		return nil, err
	}
	if kind != wire.KindHello {
		return nil, errUnexpectedFrame("Hello", kind)
	}
	peerHello, err := wire.UnmarshalHello(payload)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(peerHello.AppKeyHash, m.appKeyHash) {
		t.sendBye("app_key_hash mismatch")
		return nil, fmt.Errorf("session: app_key_hash mismatch with peer %s", peerKeyString(peerKey))
	}

	kind, payload, err = t.Recv()
	if err != nil {
		return nil, err
	}
	if kind != wire.KindRoomList {
		return nil, errUnexpectedFrame("RoomList", kind)
	}
	peerRoomList, err := wire.UnmarshalRoomList(payload)
	if err != nil {
		return nil, err
	}

	peerRooms := make(map[string]bool, len(peerRoomList.RoomIDs))
	for _, r := range peerRoomList.RoomIDs {
		peerRooms[r] = true
	}
	var shared []string
	for _, r := range localRooms {
		if peerRooms[r] {
			shared = append(shared, r)
		}
	}
	return shared, nil
}

// register enforces one active session per peer (spec.md §4.8 "second
// attempt deduplicated by lower-pubkey-wins"). The convention is that
// the lower-keyed peer of a pair is the one that dials; when a race
// produces two simultaneous connections for the same peer (both sides
// dialed each other, or a stale session didn't tear down before a
// reconnect), the connection matching that convention survives. Both
// ends of a pair compute this the same way, so they converge on the
// same surviving session without extra negotiation.
func (m *Manager) register(peerKey ed25519.PublicKey, dialed bool, cancel context.CancelFunc) bool {
	key := peerKeyString(peerKey)
	localLower := m.localIsLower(peerKey)
	conventional := dialed == localLower

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[key]; ok {
		if existing.conventional || !conventional {
			return false
		}
		existing.cancel()
	}
	m.sessions[key] = &activeSession{peerKey: peerKey, conventional: conventional, cancel: cancel}
	return true
}

func (m *Manager) unregister(peerKey ed25519.PublicKey) {
	key := peerKeyString(peerKey)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// pingLoop sends a liveness Ping at settings.PingInterval until ctx is
// done, the per-session liveness mechanism spec.md §4.8 requires.
func (m *Manager) pingLoop(ctx context.Context, t *wsTransport) {
	interval := m.settings.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := t.sendPing(uint64(now.UnixMilli())); err != nil {
				return
			}
		}
	}
}

// roomsDigest summarizes a Room ID set for Hello's rooms_digest field: a
// quick point of comparison exchanged before the full RoomList frame,
// sorted so the digest doesn't depend on enumeration order.
func roomsDigest(rooms []string) []byte {
	sorted := append([]string(nil), rooms...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, r := range sorted {
		h.Write([]byte(r))
		h.Write([]byte{0x00})
	}
	return h.Sum(nil)
}
