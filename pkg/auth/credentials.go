package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// Credential errors.
var (
	ErrInvalidKeySize = errors.New("invalid key size")
)

// Signer signs handshake challenges with a private credential.
type Signer interface {
	// Sign returns a signature over data.
	Sign(data []byte) ([]byte, error)

	// Identity returns a stable identifier for the credential,
	// used in session token derivation and logging.
	Identity() string
}

// Verifier verifies handshake signatures against a public credential.
type Verifier interface {
	// Verify reports whether sig is a valid signature over data.
	Verify(data, sig []byte) bool

	// Identity returns a stable identifier for the credential.
	Identity() string
}

// Credential is an Ed25519 key pair usable as both Signer and Verifier.
type Credential struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewCredential generates a fresh Ed25519 credential.
func NewCredential() (*Credential, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credential: %w", err)
	}
	return &Credential{private: priv, public: pub}, nil
}

// CredentialFromSeed builds a credential from a 32-byte Ed25519 seed.
func CredentialFromSeed(seed []byte) (*Credential, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKeySize, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Credential{
		private: priv,
		public:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Sign signs data with the private key.
func (c *Credential) Sign(data []byte) ([]byte, error) {
	if c.private == nil {
		return nil, errors.New("credential has no private key")
	}
	return ed25519.Sign(c.private, data), nil
}

// Verify reports whether sig is a valid signature over data.
func (c *Credential) Verify(data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(c.public, data, sig)
}

// Identity returns the hex-encoded public key.
func (c *Credential) Identity() string {
	return hex.EncodeToString(c.public)
}

// PublicKey returns the public half of the credential.
func (c *Credential) PublicKey() ed25519.PublicKey {
	return c.public
}

// PublicVerifier builds a Verifier from a raw Ed25519 public key,
// for responders that only hold the initiator's public credential.
func PublicVerifier(pub []byte) (*Credential, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes", ErrInvalidKeySize, ed25519.PublicKeySize)
	}
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, pub)
	return &Credential{public: key}, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Signer   = (*Credential)(nil)
	_ Verifier = (*Credential)(nil)
)
