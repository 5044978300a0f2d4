// Package sign produces the per-venue request authentication signatures.
// It is pure computation: no I/O, no mutable state beyond key material
// loaded at construction, safe for concurrent use.
package sign

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"stark-arb-bot/internal/venue"
)

var (
	ErrInvalidKeyMaterial = errors.New("invalid signing key material")
	ErrSignatureMismatch  = errors.New("signature failed self-verification")
)

// Request is the canonical shape of an outbound authenticated call.
// Params carry query or body fields depending on the venue's convention.
type Request struct {
	Method    string
	Path      string
	Body      string
	Params    map[string]string
	Timestamp time.Time
}

// SignedRequest is consumed immediately by the venue client; it is never
// stored.
type SignedRequest struct {
	Venue     venue.ID
	Message   string
	Signature string
	Timestamp time.Time
	Headers   map[string]string
}

// Key is the venue-specific key material. Account identifies the on-record
// account (edgeX account id, Paradex account address). PublicKey, when set,
// is checked against the key-derived public key at construction.
type Key struct {
	Venue         venue.ID
	PrivateKeyHex string
	Account       string
	PublicKey     string
	Deterministic bool
}

type RequestSigner interface {
	SignRequest(req Request) (SignedRequest, error)
	PublicKey() string
}

// New dispatches over the closed set of venue signing schemes.
func New(key Key) (RequestSigner, error) {
	switch key.Venue {
	case venue.Edgex:
		return NewStarkEx(key)
	case venue.Paradex:
		return NewStarkNet(key)
	default:
		return nil, fmt.Errorf("no signing scheme for venue %q", key.Venue)
	}
}

// parsePrivateKey validates and decodes a hex private scalar. Zero, out of
// range and malformed inputs are key-material errors, never signed with.
func parsePrivateKey(hexKey string) (*big.Int, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if clean == "" {
		return nil, fmt.Errorf("%w: empty private key", ErrInvalidKeyMaterial)
	}
	priv, ok := new(big.Int).SetString(clean, 16)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not valid hex", ErrInvalidKeyMaterial)
	}
	if priv.Sign() <= 0 {
		return nil, fmt.Errorf("%w: private key is zero", ErrInvalidKeyMaterial)
	}
	if priv.Cmp(curveN) >= 0 {
		return nil, fmt.Errorf("%w: private key exceeds curve order", ErrInvalidKeyMaterial)
	}
	return priv, nil
}

func feltHex(v *big.Int) string {
	return "0x" + v.Text(16)
}

// checkPublicKey compares a derived public x-coordinate against the
// configured on-record key, when one is supplied. A mismatched pairing is
// the dominant failure mode for this subsystem, so it is fatal here rather
// than a rejected request later.
func checkPublicKey(derived *big.Int, configured string) error {
	configured = strings.TrimPrefix(strings.TrimSpace(configured), "0x")
	if configured == "" {
		return nil
	}
	want, ok := new(big.Int).SetString(configured, 16)
	if !ok {
		return fmt.Errorf("%w: configured public key is not valid hex", ErrInvalidKeyMaterial)
	}
	if derived.Cmp(want) != 0 {
		return fmt.Errorf("%w: derived public key %s does not match configured %s",
			ErrInvalidKeyMaterial, feltHex(derived), feltHex(want))
	}
	return nil
}

func (k Key) nonces(z, priv *big.Int) nonceSource {
	if k.Deterministic {
		return newRFC6979(priv, z)
	}
	return randomNonce{}
}
