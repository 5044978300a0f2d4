package sign

import (
	"errors"
	"math/big"
)

// Stark curve: y^2 = x^3 + alpha*x + beta over the prime field of order
// curveP, with group order curveN. Parameters as published by Starkware;
// both venues authenticate against this curve.
var (
	curveP     = mustBig("800000000000011000000000000000000000000000000000000000000000001")
	curveN     = mustBig("800000000000010ffffffffffffffffb781126dcae7b2321e66a241adc64d2f")
	curveAlpha = big.NewInt(1)
	curveBeta  = mustBig("6f21413efbe40de150e596d72f7a8c5609ad26c15c915c1f4cdfcb99cee9e89")
	curveGen   = &point{
		X: mustBig("1ef15c18599971b7beced415a40f0c7deacfd9b0d1819e03d723d8bc943cfca"),
		Y: mustBig("5668060aa49730b7be4801df46ec62de53ecd11abe43a32873000c36e8dc1f"),
	}

	// Starkware's ECDSA restricts r and s^-1 to [1, 2^251).
	ecdsaBound = new(big.Int).Lsh(big.NewInt(1), 251)
)

const maxSignAttempts = 100

var errUnluckyNonce = errors.New("could not produce signature within nonce attempts")

// point is an affine curve point; a nil *point is the point at infinity.
type point struct {
	X, Y *big.Int
}

func mustBig(hex string) *big.Int {
	v, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		panic("sign: bad curve constant " + hex)
	}
	return v
}

func (p *point) clone() *point {
	if p == nil {
		return nil
	}
	return &point{X: new(big.Int).Set(p.X), Y: new(big.Int).Set(p.Y)}
}

func onCurve(p *point) bool {
	if p == nil || p.X == nil || p.Y == nil {
		return false
	}
	if p.X.Sign() < 0 || p.X.Cmp(curveP) >= 0 || p.Y.Sign() < 0 || p.Y.Cmp(curveP) >= 0 {
		return false
	}
	lhs := new(big.Int).Mul(p.Y, p.Y)
	lhs.Mod(lhs, curveP)
	rhs := new(big.Int).Mul(p.X, p.X)
	rhs.Mul(rhs, p.X)
	rhs.Add(rhs, new(big.Int).Mul(curveAlpha, p.X))
	rhs.Add(rhs, curveBeta)
	rhs.Mod(rhs, curveP)
	return lhs.Cmp(rhs) == 0
}

func pointAdd(p, q *point) *point {
	if p == nil {
		return q.clone()
	}
	if q == nil {
		return p.clone()
	}
	if p.X.Cmp(q.X) == 0 {
		sum := new(big.Int).Add(p.Y, q.Y)
		sum.Mod(sum, curveP)
		if sum.Sign() == 0 {
			return nil
		}
		return pointDouble(p)
	}
	num := new(big.Int).Sub(q.Y, p.Y)
	den := new(big.Int).Sub(q.X, p.X)
	den.Mod(den, curveP)
	den.ModInverse(den, curveP)
	slope := num.Mul(num, den)
	slope.Mod(slope, curveP)
	return pointFromSlope(slope, p, q)
}

func pointDouble(p *point) *point {
	if p == nil {
		return nil
	}
	num := new(big.Int).Mul(p.X, p.X)
	num.Mul(num, big.NewInt(3))
	num.Add(num, curveAlpha)
	den := new(big.Int).Lsh(p.Y, 1)
	den.Mod(den, curveP)
	den.ModInverse(den, curveP)
	slope := num.Mul(num, den)
	slope.Mod(slope, curveP)
	return pointFromSlope(slope, p, p)
}

func pointFromSlope(slope *big.Int, p, q *point) *point {
	x := new(big.Int).Mul(slope, slope)
	x.Sub(x, p.X)
	x.Sub(x, q.X)
	x.Mod(x, curveP)
	y := new(big.Int).Sub(p.X, x)
	y.Mul(y, slope)
	y.Sub(y, p.Y)
	y.Mod(y, curveP)
	return &point{X: x, Y: y}
}

func scalarMul(k *big.Int, p *point) *point {
	var acc *point
	for i := k.BitLen() - 1; i >= 0; i-- {
		acc = pointDouble(acc)
		if k.Bit(i) == 1 {
			acc = pointAdd(acc, p)
		}
	}
	return acc
}

func scalarBaseMul(k *big.Int) *point {
	return scalarMul(k, curveGen)
}

type nonceSource interface {
	next() (*big.Int, error)
}

// ecSign produces a Starkware-convention ECDSA signature over the already
// reduced message value z. Nonces come from the supplied source so callers
// choose deterministic (RFC 6979) or randomized generation.
func ecSign(z, priv *big.Int, nonces nonceSource) (*big.Int, *big.Int, error) {
	zn := new(big.Int).Mod(z, curveN)
	for attempt := 0; attempt < maxSignAttempts; attempt++ {
		k, err := nonces.next()
		if err != nil {
			return nil, nil, err
		}
		if k.Sign() <= 0 || k.Cmp(curveN) >= 0 {
			continue
		}
		rp := scalarBaseMul(k)
		if rp == nil {
			continue
		}
		r := new(big.Int).Set(rp.X)
		if r.Sign() == 0 || r.Cmp(ecdsaBound) >= 0 {
			continue
		}
		t := new(big.Int).Mul(r, priv)
		t.Add(t, zn)
		t.Mod(t, curveN)
		if t.Sign() == 0 {
			continue
		}
		w := new(big.Int).ModInverse(t, curveN)
		w.Mul(w, k)
		w.Mod(w, curveN)
		if w.Sign() == 0 || w.Cmp(ecdsaBound) >= 0 {
			continue
		}
		s := new(big.Int).ModInverse(w, curveN)
		return r, s, nil
	}
	return nil, nil, errUnluckyNonce
}

func ecVerify(z, r, s *big.Int, pub *point) bool {
	if !onCurve(pub) {
		return false
	}
	if r.Sign() <= 0 || r.Cmp(ecdsaBound) >= 0 {
		return false
	}
	if s.Sign() <= 0 || s.Cmp(curveN) >= 0 {
		return false
	}
	zn := new(big.Int).Mod(z, curveN)
	w := new(big.Int).ModInverse(s, curveN)
	u1 := new(big.Int).Mul(zn, w)
	u1.Mod(u1, curveN)
	u2 := new(big.Int).Mul(r, w)
	u2.Mod(u2, curveN)
	pt := pointAdd(scalarMul(u1, curveGen), scalarMul(u2, pub))
	return pt != nil && pt.X.Cmp(r) == 0
}

func derivePublic(priv *big.Int) *point {
	return scalarBaseMul(priv)
}
