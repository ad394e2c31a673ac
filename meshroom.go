// Package meshroom is the host API façade spec.md §6 describes: an
// embedded, access-controlled, end-to-end peer-replicated database. A
// Host owns one SQLite file (not encrypted at rest), one schema registry (the system
// Room/membership schema plus the caller's own data model), and the
// mutation/deletion/query/session machinery that operates on them.
package meshroom

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/deletion"
	"github.com/roach88/meshroom/internal/eventbus"
	"github.com/roach88/meshroom/internal/invite"
	"github.com/roach88/meshroom/internal/mutation"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/session"
	"github.com/roach88/meshroom/internal/store"
)

// Config holds spec.md §6's closed set of configuration options.
type Config struct {
	EnableLANDiscovery   bool
	Beacons              []string
	MaxPeers             int
	SyncBatchBytes       int
	SyncCreditWindow     int
	HandshakeTimeoutMS   int
	FullTextIndexDefault bool
}

func (c Config) sessionSettings() session.Settings {
	s := session.DefaultSettings()
	if c.SyncBatchBytes > 0 {
		s.BatchBytes = c.SyncBatchBytes
	}
	if c.SyncCreditWindow > 0 {
		s.CreditWindow = c.SyncCreditWindow
	}
	if c.HandshakeTimeoutMS > 0 {
		s.HandshakeTimeout = time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
	}
	if c.MaxPeers > 0 {
		s.MaxConcurrentRooms = int64(c.MaxPeers)
	}
	return s
}

// Host is one running instance of the embedded database (spec.md §6
// `new(model, app_key, key_material, path, config)`).
type Host struct {
	cfg      Config
	identity *crypto.Identity
	// storeKey is the database's own derived at-rest key (spec.md §6:
	// "the key derives from key_material via a memory-hard KDF with a
	// per-install salt"). internal/store's Open does not yet accept it
	// (row-level encryption at rest is out of scope, spec.md §1) but it
	// is derived and held here so the seam internal/store/doc.go leaves
	// for a future SQLCipher build has a real value ready to plug in.
	storeKey []byte

	st    *store.Store
	reg   *schema.Registry
	authz *auth.Engine
	bus   *eventbus.Bus

	mutate   *mutation.Executor
	deleter  *deletion.Executor
	sessions *session.Manager

	mu    sync.RWMutex
	rooms map[string]struct{}
}

// New opens (or creates) a Host backed by one database file at
// data_dir/<app_key_hash>.db. model is the caller's own data-model DSL
// source (spec.md §4.1); it is applied on top of internal/auth's system
// Room/membership schema so application entities and Rooms share one
// registry, one store, and one sync path (spec.md §3).
func New(model, appKey, keyMaterial, dataDir string, cfg Config) (*Host, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, newError(ErrCodeInternal, "", "", fmt.Errorf("create data dir: %w", err))
	}

	salt, err := crypto.LoadOrCreateSalt(dataDir)
	if err != nil {
		return nil, newError(ErrCodeInternal, "", "", fmt.Errorf("load salt: %w", err))
	}
	identity, err := crypto.DeriveIdentity([]byte(keyMaterial), salt)
	if err != nil {
		return nil, newError(ErrCodeInternal, "", "", fmt.Errorf("derive identity: %w", err))
	}
	storeKey := crypto.DeriveStoreKey([]byte(keyMaterial), salt)

	appKeyHash := sha256.Sum256([]byte(appKey))
	dbPath := filepath.Join(dataDir, hex.EncodeToString(appKeyHash[:])+".db")

	reg := schema.New()
	if err := reg.Apply(auth.SystemSchema + model); err != nil {
		return nil, newError(ErrCodeSchemaViolation, "", "", err)
	}

	st, err := store.Open(dbPath, reg)
	if err != nil {
		return nil, newError(ErrCodeInternal, "", "", fmt.Errorf("open store: %w", err))
	}

	authz := auth.NewEngine(st)
	bus := eventbus.NewBus(256)

	h := &Host{
		cfg:      cfg,
		identity: identity,
		storeKey: storeKey,
		st:       st,
		reg:      reg,
		authz:    authz,
		bus:      bus,
		rooms:    make(map[string]struct{}),
	}
	h.mutate = mutation.New(st, reg, authz, identity, mutationPublisher{h})
	h.deleter = deletion.New(st, reg, authz, identity, deletionPublisher{h})
	h.sessions = session.NewManager(identity, appKeyHash[:], st, reg, authz, bus, h, cfg.sessionSettings())

	if err := h.loadJoinedRooms(context.Background()); err != nil {
		st.Close()
		return nil, newError(ErrCodeInternal, "", "", err)
	}

	return h, nil
}

// Close releases the Host's store handle. In-flight session rounds are
// not tracked here; callers driving internal/session.Manager.Dial/Serve
// own their own context cancellation (spec.md §5 "every task holds a
// cancellation token").
func (h *Host) Close() error {
	return h.st.Close()
}

// Identity exposes this Host's signing public key, the identity every
// row it authors carries and every certificate internal/session pins.
func (h *Host) Identity() ed25519.PublicKey {
	return h.identity.SigningPublic
}

// Sessions returns the peer session manager (spec.md §4.8), for callers
// that want to Dial or Serve explicitly; discovery/transport wiring
// (LAN discovery, beacons) is a host-loop concern spec.md §1 places out
// of this library's scope.
func (h *Host) Sessions() *session.Manager {
	return h.sessions
}

// Rooms implements internal/session.RoomSet: the set of Rooms this Host
// currently belongs to, refreshed at every handshake so a Room joined
// after a peer connects is still picked up without reconnecting.
func (h *Host) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for r := range h.rooms {
		out = append(out, r)
	}
	return out
}

func (h *Host) addRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[room] = struct{}{}
}

// loadJoinedRooms rebuilds the in-memory joined-room set from the
// system Room rows already present in the store (populated on a prior
// run), by querying every room this host's own key holds a current
// membership in.
func (h *Host) loadJoinedRooms(ctx context.Context) error {
	rooms, err := auth.RoomsForPeer(ctx, h.st, h.identity.SigningPublic)
	if err != nil {
		return fmt.Errorf("load joined rooms: %w", err)
	}
	for _, r := range rooms {
		h.addRoom(r)
	}
	return nil
}

// PrivateRoom creates a new Room with this Host as its sole admin
// (spec.md §6 `private_room() -> room_id`) and returns its id.
func (h *Host) PrivateRoom() (string, error) {
	room := ulid.Make().String()
	now := time.Now().UnixMilli()
	if err := auth.Bootstrap(context.Background(), h.st, h.reg, room, h.identity.SigningPrivate, now, true); err != nil {
		return "", newError(ErrCodeInternal, room, "", err)
	}
	h.addRoom(room)
	return room, nil
}

// Invite produces an opaque invitation token for room at role (spec.md
// §6 `invite(room, role) -> token`, §4.10's Generator). The caller must
// already hold ActionAdmin over room.
func (h *Host) Invite(room, role string, validity time.Duration) (string, error) {
	now := time.Now().UnixMilli()
	allowed, err := h.authz.Allowed(context.Background(), h.identity.SigningPublic, room, "*", auth.ActionAdmin, now)
	if err != nil {
		return "", newError(ErrCodeInternal, room, "", err)
	}
	if !allowed {
		return "", newError(ErrCodeUnauthorized, room, "", fmt.Errorf("only a room admin may invite"))
	}
	token, err := invite.Generate(room, role, h.identity.SigningPrivate, nil, validity)
	if err != nil {
		return "", newError(ErrCodeInternal, room, "", err)
	}
	return token, nil
}

// Accept redeems an invitation token (spec.md §6 `accept(token)`,
// §4.10's Acceptor): it verifies token, then contacts issuer over an
// already-established internal/session.Manager connection to have it
// admit this Host's identity into room's membership roster. Until that
// admission round completes and replicates, other peers will continue
// rejecting this Host's writes in room (spec.md §4.10).
//
// admit is the caller-supplied redemption callback: in the common case
// it dials issuer and asks it to call internal/invite.Admit on this
// Host's behalf, since only an existing admin's signature can extend
// the membership roster (see internal/invite's DESIGN.md entry for why
// "authors a membership row" is issuer-side, not acceptor-side).
func (h *Host) Accept(ctx context.Context, token string, admit func(ctx context.Context, issuer ed25519.PublicKey, claims *invite.Claims) error) error {
	claims, issuerKey, err := invite.ParseSelfDescribing(token, h.identity.SigningPublic)
	if err != nil {
		return newError(ErrCodeInvalidSignature, "", "", err)
	}
	if err := admit(ctx, issuerKey, claims); err != nil {
		return newError(ErrCodeTransportFault, claims.RoomID, "", err)
	}
	h.addRoom(claims.RoomID)
	return nil
}

// mutationPublisher adapts internal/mutation.ChangeEvent onto the
// shared eventbus.Bus.
type mutationPublisher struct{ h *Host }

func (p mutationPublisher) Publish(e mutation.ChangeEvent) {
	p.h.bus.Publish(eventbus.Event{Kind: eventbus.DataChanged, Room: e.RoomID, Entity: e.Entity, RowID: e.RowID, Origin: e.Origin})
}

// deletionPublisher adapts internal/deletion.ChangeEvent onto the
// shared eventbus.Bus.
type deletionPublisher struct{ h *Host }

func (p deletionPublisher) Publish(e deletion.ChangeEvent) {
	p.h.bus.Publish(eventbus.Event{Kind: eventbus.DataChanged, Room: e.RoomID, Entity: e.Entity, RowID: e.RowID, Origin: e.Origin})
}

// SubscribeForEvents returns a live event subscription (spec.md §6
// `subscribe_for_events() -> stream`, §4.9). Callers must Close it when
// done to free its mailbox.
func (h *Host) SubscribeForEvents() *eventbus.Subscription {
	return h.bus.Subscribe()
}
