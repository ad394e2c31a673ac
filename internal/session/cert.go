package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// certValidFor is generous on purpose: the certificate is never checked
// against a CA or a clock in any way that matters, only its embedded
// public key is pinned against the expected peer identity. A short
// lifetime would just be one more way for clock skew between peers to
// break a handshake for no security benefit.
const certValidFor = 10 * 365 * 24 * time.Hour

// selfSignedCert builds a self-signed TLS certificate whose subject
// public key is identity's own Ed25519 signing key, signed by that same
// key (spec.md §4.8: "a transport connection whose certificate binds
// the peer's signing public key"). Adapted from
// bringyour-connect/connect/net_extender_server.go's selfSign, which
// generates an RSA or ECDSA self-signed cert for a plain TLS listener;
// here the subject key is fixed to the caller's identity rather than
// freshly generated, since the whole point is for the peer to recognize
// who signed it.
func selfSignedCert(priv ed25519.PrivateKey) (tls.Certificate, error) {
	pub := priv.Public().(ed25519.PublicKey)

	serialLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("session: generate serial: %w", err)
	}

	notBefore := time.Now().Add(-time.Hour)
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"meshroom"}},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(certValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("session: create certificate: %w", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

// pinnedTLSConfig returns a mutual-TLS config: both ends present cert
// (ClientAuth requires one from whichever side is dialed into, since a
// peer session is symmetric rather than client/server) and Go's
// certificate-chain verification is disabled in favor of pinning the
// remote side's Ed25519 subject public key against expectedPeer. There
// is no CA here to chain to in the first place; this is the same trade
// bringyour-connect's extender transport makes when it skips cert
// verification in favor of its own application-level auth handshake.
func pinnedTLSConfig(cert tls.Certificate, expectedPeer ed25519.PublicKey) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true,
		ClientAuth:         tls.RequireAnyClientCert,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if expectedPeer == nil {
				return nil
			}
			if len(rawCerts) == 0 {
				return fmt.Errorf("session: peer presented no certificate")
			}
			peerCert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("session: parse peer certificate: %w", err)
			}
			peerPub, ok := peerCert.PublicKey.(ed25519.PublicKey)
			if !ok {
				return fmt.Errorf("session: peer certificate key is not Ed25519")
			}
			if !peerPub.Equal(expectedPeer) {
				return fmt.Errorf("session: peer certificate key does not match expected peer")
			}
			return nil
		},
	}
}

// anyPeerTLSConfig is pinnedTLSConfig without an expected peer, used on
// the accepting side of a handshake where the remote identity is
// learned from the certificate itself rather than known in advance
// (e.g. a listener accepting a connection from an as-yet-unknown peer
// that will introduce itself in Hello).
func anyPeerTLSConfig(cert tls.Certificate) *tls.Config {
	return pinnedTLSConfig(cert, nil)
}

// peerKeyFromConnState extracts the Ed25519 public key pinned in the
// remote side's certificate from an established TLS connection state.
func peerKeyFromConnState(state tls.ConnectionState) (ed25519.PublicKey, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("session: no peer certificate presented")
	}
	pub, ok := state.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("session: peer certificate key is not Ed25519")
	}
	return pub, nil
}
