package invite

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/roach88/meshroom/internal/auth"
)

// Claims is the invitation token's payload (spec.md §4.10: "{room_id,
// role, issuer, expiry, nonce}"). issuer and the invitee identity
// commitment map onto the registered Issuer and Subject claims so
// expiry and signature verification come from jwt's own validation
// rather than hand-rolled checks; nonce maps onto the registered ID
// (jti) claim.
type Claims struct {
	jwt.RegisteredClaims
	RoomID string `json:"room_id"`
	Role   string `json:"role"`
}

// Generate produces an EdDSA-signed invitation token binding room and
// role, issued by issuer and valid for validity starting now. spec.md
// §4.10's token carries no invitee field — `{room_id, role, issuer,
// expiry, nonce}` — so invitee may be nil for an anyone-holding-this-
// token invitation; passing a real key additionally binds the token's
// Subject to that identity, for callers that want the stronger,
// point-to-point guarantee. Only an admin should call this; authorizing
// the call itself is the caller's responsibility (spec.md §4.5), the
// same division internal/auth.Advance draws between authoring a row
// and checking whether the author may do so.
func Generate(room, role string, issuer ed25519.PrivateKey, invitee ed25519.PublicKey, validity time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.PeerKey(issuer.Public().(ed25519.PublicKey)),
			Subject:   auth.PeerKey(invitee),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		RoomID: room,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(issuer)
	if err != nil {
		return "", fmt.Errorf("invite: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenString's EdDSA signature against issuerPublic and
// its expiry, returning the decoded claims. If invitee is non-nil and
// the token was generated bound to a Subject, that Subject must match
// invitee — the check an acceptor runs to confirm a token handed to it
// out of band was actually addressed to its own identity, not
// intercepted or passed along from someone else's invitation. A token
// generated with no invitee (an empty Subject, spec.md §4.10's
// anyone-holding-this-token shape) always passes this check.
func Parse(tokenString string, issuerPublic ed25519.PublicKey, invitee ed25519.PublicKey) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return issuerPublic, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, fmt.Errorf("invite: parse token: %w", err)
	}

	if claims.Issuer != auth.PeerKey(issuerPublic) {
		return nil, fmt.Errorf("invite: token issuer does not match expected signer")
	}
	if invitee != nil && claims.Subject != "" && claims.Subject != auth.PeerKey(invitee) {
		return nil, fmt.Errorf("invite: token was not addressed to this identity")
	}
	return claims, nil
}

// ParseSelfDescribing verifies and decodes tokenString without the
// caller needing to already know the issuer's public key: it reads the
// claimed Issuer off the token first (the way internal/session's
// self-signed certificates are trusted by their own embedded key, not a
// separate CA), decodes it as the verification key, and then runs the
// normal Parse checks against it. This is how an acceptor who has never
// talked to the issuer before verifies a freshly received invitation —
// spec.md §4.10's acceptor trusts the token because it trusts whoever
// handed it over out of band, not because it already holds the
// issuer's key.
func ParseSelfDescribing(tokenString string, invitee ed25519.PublicKey) (*Claims, ed25519.PublicKey, error) {
	unverified := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"EdDSA"}))
	if _, _, err := parser.ParseUnverified(tokenString, unverified); err != nil {
		return nil, nil, fmt.Errorf("invite: read token issuer: %w", err)
	}
	issuerKey, err := base64.StdEncoding.DecodeString(unverified.Issuer)
	if err != nil || len(issuerKey) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("invite: token issuer is not a valid signing key")
	}

	claims, err := Parse(tokenString, ed25519.PublicKey(issuerKey), invitee)
	if err != nil {
		return nil, nil, err
	}
	return claims, ed25519.PublicKey(issuerKey), nil
}
