package sign

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"stark-arb-bot/internal/venue"
)

// edgeX request signing headers. Header names are part of the venue API
// contract.
const (
	edgexTimestampHeader = "X-edgeX-Api-Timestamp"
	edgexSignatureHeader = "X-edgeX-Api-Signature"
)

// StarkEx signs edgeX requests: SHA3-256 of the canonical message string,
// reduced into the stark field, then ECDSA on the stark curve. The
// reduction step is what the venue verifies against; without it signatures
// are rejected.
type StarkEx struct {
	key  Key
	priv *big.Int
	pub  *point
}

func NewStarkEx(key Key) (*StarkEx, error) {
	priv, err := parsePrivateKey(key.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	pub := derivePublic(priv)
	if !onCurve(pub) {
		return nil, fmt.Errorf("%w: derived public key not on curve", ErrInvalidKeyMaterial)
	}
	if err := checkPublicKey(pub.X, key.PublicKey); err != nil {
		return nil, err
	}
	return &StarkEx{key: key, priv: priv, pub: pub}, nil
}

func (s *StarkEx) PublicKey() string {
	return feltHex(s.pub.X)
}

func (s *StarkEx) SignRequest(req Request) (SignedRequest, error) {
	msg := CanonicalMessage(req.Timestamp.UnixMilli(), req.Method, req.Path, req.Params)
	z := ReduceDigest(messageDigest(msg))
	r, sv, err := ecSign(z, s.priv, s.key.nonces(z, s.priv))
	if err != nil {
		return SignedRequest{}, err
	}
	if !ecVerify(z, r, sv, s.pub) {
		return SignedRequest{}, ErrSignatureMismatch
	}
	sig := fmt.Sprintf("%064x%064x", r, sv)
	ts := strconv.FormatInt(req.Timestamp.UnixMilli(), 10)
	return SignedRequest{
		Venue:     venue.Edgex,
		Message:   msg,
		Signature: sig,
		Timestamp: req.Timestamp,
		Headers: map[string]string{
			edgexTimestampHeader: ts,
			edgexSignatureHeader: sig,
		},
	}, nil
}

// CanonicalMessage builds the string the venue verifies:
// {millis}{METHOD}{path}{sortedParams}. Params render as k=v pairs joined
// by '&', keys ascending, with no leading '?' (pinned against the venue's
// signing docs, see contract test).
func CanonicalMessage(millis int64, method, path string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(millis, 10))
	b.WriteString(strings.ToUpper(method))
	b.WriteString(path)
	b.WriteString(sortedParams(params))
	return b.String()
}

func sortedParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

func messageDigest(msg string) *big.Int {
	digest := sha3.Sum256([]byte(msg))
	return new(big.Int).SetBytes(digest[:])
}

// ReduceDigest maps a 256-bit digest into the stark field. Idempotent:
// reducing an already reduced value is a no-op.
func ReduceDigest(h *big.Int) *big.Int {
	return new(big.Int).Mod(h, curveP)
}
