// Package auth verifies signed-challenge identity proofs. A caller signs the
// service challenge string with an ed25519 key and sends the address derived
// from the public key; the service accepts the identity only when the
// signature checks out and the address matches the key.
package auth

import (
	"crypto/ed25519"
	"encoding/base32"
	"encoding/base64"
	"strings"

	apperrors "github.com/louisbranch/augurrank/internal/platform/errors"
	"github.com/louisbranch/augurrank/internal/predictions/domain"
)

// AddrPrefix marks service address identities.
const AddrPrefix = "ar1"

var addrEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Proof is one signed identity proof as carried on requests.
type Proof struct {
	Addr      string
	Challenge string
	PubKey    string
	Sig       string
}

// Verifier checks identity proofs against a fixed service challenge.
type Verifier struct {
	challenge string
}

// NewVerifier constructs a verifier for the given challenge string.
func NewVerifier(challenge string) *Verifier {
	return &Verifier{challenge: challenge}
}

// Verify checks the proof and returns the normalized address identity it
// establishes.
func (v *Verifier) Verify(proof Proof) (string, error) {
	if v == nil || v.challenge == "" {
		return "", apperrors.New(apperrors.CodeIdentityUnverified, "verifier challenge is not configured")
	}
	addr := domain.NormalizeAddr(proof.Addr)
	if addr == "" || proof.PubKey == "" || proof.Sig == "" {
		return "", apperrors.New(apperrors.CodeIdentityUnverified, "identity proof is incomplete")
	}
	if proof.Challenge != v.challenge {
		return "", apperrors.New(apperrors.CodeIdentityUnverified, "challenge does not match")
	}

	pub, err := base64.StdEncoding.DecodeString(proof.PubKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", apperrors.New(apperrors.CodeIdentityUnverified, "public key is malformed")
	}
	sig, err := base64.StdEncoding.DecodeString(proof.Sig)
	if err != nil {
		return "", apperrors.New(apperrors.CodeIdentityUnverified, "signature is malformed")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(proof.Challenge), sig) {
		return "", apperrors.New(apperrors.CodeIdentityUnverified, "signature does not verify")
	}
	if DeriveAddress(pub) != addr {
		return "", apperrors.New(apperrors.CodeIdentityMismatch, "address does not match public key")
	}
	return addr, nil
}

// DeriveAddress maps an ed25519 public key to its address identity.
func DeriveAddress(pub ed25519.PublicKey) string {
	return AddrPrefix + strings.ToLower(addrEncoding.EncodeToString(pub))
}
