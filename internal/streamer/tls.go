package streamer

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"time"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/tendermint/tpu/types"
)

// ALPN is the application protocol negotiated by TPU QUIC endpoints.
const ALPN = "solana-tpu"

// NewTLSCertificate returns a self-signed certificate for identity. Peers
// identify each other by the certificate's public key, not its chain.
func NewTLSCertificate(identity ed25519.PrivateKey) (tls.Certificate, error) {
	if len(identity) != ed25519.PrivateKeySize {
		return tls.Certificate{}, errors.New("invalid identity key size")
	}
	// x509 only understands the standard library key types.
	key := stded25519.NewKeyFromSeed(identity[:ed25519.SeedSize])

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Solana node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(100 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// ServerTLSConfig accepts any client certificate and leaves identity
// checks to the stake lookup.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequestClientCert,
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true, //nolint:gosec
		MinVersion:         tls.VersionTLS13,
	}
}

// ClientTLSConfig presents cert, when given, and skips server chain
// verification.
func ClientTLSConfig(cert *tls.Certificate) *tls.Config {
	cfg := &tls.Config{
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true, //nolint:gosec
		MinVersion:         tls.VersionTLS13,
	}
	if cert != nil {
		cfg.Certificates = []tls.Certificate{*cert}
	}
	return cfg
}

// peerPubkey extracts the ed25519 identity from a peer's certificate.
func peerPubkey(state tls.ConnectionState) (types.Pubkey, bool) {
	if len(state.PeerCertificates) == 0 {
		return types.Pubkey{}, false
	}
	pub, ok := state.PeerCertificates[0].PublicKey.(stded25519.PublicKey)
	if !ok {
		return types.Pubkey{}, false
	}
	pk, err := types.PubkeyFromBytes(pub)
	if err != nil {
		return types.Pubkey{}, false
	}
	return pk, true
}
