package crypto

import (
	"crypto/ed25519"

	"golang.org/x/crypto/curve25519"
)

// Identity is a peer's long-lived key material (spec.md §3 "Identity").
// SigningPublic is the peer's stable identity and is what gets stored as
// every row's author column.
type Identity struct {
	SigningPublic   ed25519.PublicKey
	SigningPrivate  ed25519.PrivateKey
	ExchangePublic  [32]byte
	ExchangePrivate [32]byte
}

// DeriveIdentity derives a peer's signing and key-exchange pairs from
// keyMaterial (the pass-phrase or equivalent secret, spec.md §6
// "key_material") and salt. Calling DeriveIdentity twice with the same
// inputs always yields the same Identity: identity is derived, not
// generated and persisted, so there is no private key material to store
// beyond keyMaterial itself and the salt file.
func DeriveIdentity(keyMaterial, salt []byte) (*Identity, error) {
	signingSeed := derive(keyMaterial, salt, LabelSigning)
	signingPriv := ed25519.NewKeyFromSeed(signingSeed)

	var exchangePriv [32]byte
	copy(exchangePriv[:], derive(keyMaterial, salt, LabelExchange))
	// Clamp per RFC 7748 so the scalar always lands in the correct
	// subgroup regardless of the KDF output's raw bit pattern.
	exchangePriv[0] &= 248
	exchangePriv[31] &= 127
	exchangePriv[31] |= 64

	exchangePub, err := curve25519.X25519(exchangePriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	var exchangePublic [32]byte
	copy(exchangePublic[:], exchangePub)

	return &Identity{
		SigningPublic:   signingPriv.Public().(ed25519.PublicKey),
		SigningPrivate:  signingPriv,
		ExchangePublic:  exchangePublic,
		ExchangePrivate: exchangePriv,
	}, nil
}

// SharedSecret computes the X25519 shared secret with a peer's public
// exchange key, for the transport handshake (internal/session) to mix
// into its session key derivation.
func (id *Identity) SharedSecret(peerExchangePublic [32]byte) ([]byte, error) {
	return curve25519.X25519(id.ExchangePrivate[:], peerExchangePublic[:])
}
