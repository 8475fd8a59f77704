package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Handshake timing defaults.
const (
	// DefaultExpiryWindow is how long an issued challenge stays valid.
	DefaultExpiryWindow = 30 * time.Second

	// DefaultSkewTolerance is the allowed clock skew between peers.
	DefaultSkewTolerance = 5 * time.Second

	// SessionTokenSize is the size of derived session tokens.
	SessionTokenSize = 32
)

// Handshake errors. All of them are final for the attempt.
var (
	ErrBadSignature     = errors.New("handshake signature verification failed")
	ErrNonceExpired     = errors.New("handshake nonce expired")
	ErrNonceReplayed    = errors.New("handshake nonce already used")
	ErrNonceUnknown     = errors.New("handshake nonce was not issued")
	ErrChallengeExpired = errors.New("challenge expired before signing")
)

// ChallengePayload is the payload of an auth.challenge envelope.
//
// CBOR encoding:
//
//	{
//	  1: nonce,      // 16 random bytes (UUID)
//	  2: issuedAt,   // int64: unix milliseconds
//	  3: expiresAt   // int64: unix milliseconds
//	}
type ChallengePayload struct {
	Nonce     []byte `cbor:"1,keyasint"`
	IssuedAt  int64  `cbor:"2,keyasint"`
	ExpiresAt int64  `cbor:"3,keyasint"`
}

// ResponsePayload is the payload of an auth.response envelope.
//
// CBOR encoding:
//
//	{
//	  1: nonce,      // echoed challenge nonce
//	  2: signature   // Ed25519 signature over the nonce
//	}
type ResponsePayload struct {
	Nonce     []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

// ResultPayload is the payload of an auth.result envelope.
//
// CBOR encoding:
//
//	{
//	  1: ok,            // bool
//	  2: sessionToken,  // 32 bytes on success
//	  3: reason         // string: failure reason
//	}
type ResultPayload struct {
	OK           bool   `cbor:"1,keyasint"`
	SessionToken []byte `cbor:"2,keyasint,omitempty"`
	Reason       string `cbor:"3,keyasint,omitempty"`
}

// ResponderConfig configures the verifying side of the handshake.
type ResponderConfig struct {
	// Verifier holds the initiator's public credential.
	Verifier Verifier

	// ExpiryWindow is how long issued challenges stay valid.
	// Zero means DefaultExpiryWindow.
	ExpiryWindow time.Duration

	// SkewTolerance is the allowed clock skew when checking expiry.
	// Zero means DefaultSkewTolerance.
	SkewTolerance time.Duration
}

// Responder issues challenges and verifies signed responses.
// Safe for concurrent use by multiple accept loops.
type Responder struct {
	verifier Verifier
	expiry   time.Duration
	skew     time.Duration
	nonces   *NonceCache

	// now is replaceable for tests.
	now func() time.Time
}

// NewResponder creates a handshake responder.
func NewResponder(cfg ResponderConfig) (*Responder, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("responder requires a verifier")
	}
	if cfg.ExpiryWindow == 0 {
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.SkewTolerance == 0 {
		cfg.SkewTolerance = DefaultSkewTolerance
	}

	return &Responder{
		verifier: cfg.Verifier,
		expiry:   cfg.ExpiryWindow,
		skew:     cfg.SkewTolerance,
		nonces:   NewNonceCache(),
		now:      time.Now,
	}, nil
}

// IssueChallenge creates a fresh single-use challenge.
func (r *Responder) IssueChallenge() *ChallengePayload {
	nonce := uuid.New()
	issued := r.now()
	expires := issued.Add(r.expiry)

	r.nonces.Issue(string(nonce[:]), expires)

	return &ChallengePayload{
		Nonce:     nonce[:],
		IssuedAt:  issued.UnixMilli(),
		ExpiresAt: expires.UnixMilli(),
	}
}

// VerifyResponse checks a signed challenge response.
// On success it returns the derived session token. Any failure is final
// for this handshake attempt.
func (r *Responder) VerifyResponse(resp *ResponsePayload) ([]byte, error) {
	if resp == nil || len(resp.Nonce) == 0 {
		return nil, fmt.Errorf("%w: missing nonce", ErrNonceUnknown)
	}

	if err := r.nonces.Consume(string(resp.Nonce), r.now(), r.skew); err != nil {
		return nil, err
	}

	if !r.verifier.Verify(resp.Nonce, resp.Signature) {
		return nil, ErrBadSignature
	}

	return DeriveSessionToken(resp.Nonce, resp.Signature, r.verifier.Identity())
}

// Initiator signs challenges with a private credential.
type Initiator struct {
	signer Signer
	skew   time.Duration

	now func() time.Time
}

// NewInitiator creates a handshake initiator.
// skew is the allowed clock skew when checking challenge expiry locally;
// zero means DefaultSkewTolerance.
func NewInitiator(signer Signer, skew time.Duration) (*Initiator, error) {
	if signer == nil {
		return nil, errors.New("initiator requires a signer")
	}
	if skew == 0 {
		skew = DefaultSkewTolerance
	}
	return &Initiator{signer: signer, skew: skew, now: time.Now}, nil
}

// SignChallenge signs the challenge nonce.
// Returns ErrChallengeExpired if the challenge's expiry has already
// passed beyond the skew tolerance; signing it would only waste a
// round trip.
func (i *Initiator) SignChallenge(ch *ChallengePayload) (*ResponsePayload, error) {
	if ch == nil || len(ch.Nonce) == 0 {
		return nil, fmt.Errorf("%w: missing nonce", ErrNonceUnknown)
	}

	expires := time.UnixMilli(ch.ExpiresAt)
	if i.now().After(expires.Add(i.skew)) {
		return nil, ErrChallengeExpired
	}

	sig, err := i.signer.Sign(ch.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge: %w", err)
	}

	return &ResponsePayload{
		Nonce:     ch.Nonce,
		Signature: sig,
	}, nil
}

// Identity returns the identity of the signing credential.
func (i *Initiator) Identity() string {
	return i.signer.Identity()
}

// DeriveSessionToken derives the post-handshake session token from the
// handshake transcript via HKDF-SHA256.
func DeriveSessionToken(nonce, signature []byte, identity string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, signature, nonce, []byte("wsbase session "+identity))
	token := make([]byte, SessionTokenSize)
	if _, err := io.ReadFull(kdf, token); err != nil {
		return nil, fmt.Errorf("failed to derive session token: %w", err)
	}
	return token, nil
}
