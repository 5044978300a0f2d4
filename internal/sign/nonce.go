package sign

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
)

// rfc6979 yields the deterministic nonce sequence of RFC 6979 (HMAC-SHA256)
// over the curve order. Repeated next() calls walk the retry sequence so the
// signing loop can discard out-of-range candidates without losing
// determinism.
type rfc6979 struct {
	k, v  []byte
	ready bool
}

func newRFC6979(priv, z *big.Int) *rfc6979 {
	h1 := int2octets(new(big.Int).Mod(z, curveN))
	x := int2octets(priv)

	v := make([]byte, sha256.Size)
	k := make([]byte, sha256.Size)
	for i := range v {
		v[i] = 0x01
	}

	k = hmacSHA256(k, v, []byte{0x00}, x, h1)
	v = hmacSHA256(k, v)
	k = hmacSHA256(k, v, []byte{0x01}, x, h1)
	v = hmacSHA256(k, v)
	return &rfc6979{k: k, v: v}
}

func (g *rfc6979) next() (*big.Int, error) {
	if g.ready {
		// Previous candidate was rejected; step the generator.
		g.k = hmacSHA256(g.k, g.v, []byte{0x00})
		g.v = hmacSHA256(g.k, g.v)
	}
	g.ready = true
	var t []byte
	for len(t) < 32 {
		g.v = hmacSHA256(g.k, g.v)
		t = append(t, g.v...)
	}
	return bits2int(t[:32]), nil
}

func hmacSHA256(key []byte, chunks ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, chunk := range chunks {
		mac.Write(chunk)
	}
	return mac.Sum(nil)
}

// bits2int per RFC 6979 2.3.2: keep the leftmost qlen bits. The curve order
// is 252 bits wide against a 256-bit digest, so shift right by 4.
func bits2int(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	excess := len(b)*8 - curveN.BitLen()
	if excess > 0 {
		v.Rsh(v, uint(excess))
	}
	return v
}

// int2octets per RFC 6979 2.3.3: fixed 32-byte big-endian encoding.
func int2octets(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

// randomNonce draws nonces from crypto/rand for venues that accept (or
// require) non-deterministic signatures.
type randomNonce struct{}

func (randomNonce) next() (*big.Int, error) {
	max := new(big.Int).Sub(curveN, big.NewInt(1))
	k, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}
	return k.Add(k, big.NewInt(1)), nil
}
