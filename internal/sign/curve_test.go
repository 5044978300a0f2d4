package sign

import (
	"math/big"
	"testing"
)

func TestGeneratorOnCurve(t *testing.T) {
	if !onCurve(curveGen) {
		t.Fatal("generator not on curve")
	}
}

func TestScalarMulMatchesAddition(t *testing.T) {
	twoG := scalarBaseMul(big.NewInt(2))
	sum := pointAdd(curveGen, curveGen)
	if twoG.X.Cmp(sum.X) != 0 || twoG.Y.Cmp(sum.Y) != 0 {
		t.Fatal("2*G != G+G")
	}
	threeG := scalarBaseMul(big.NewInt(3))
	sum = pointAdd(sum, curveGen)
	if threeG.X.Cmp(sum.X) != 0 || threeG.Y.Cmp(sum.Y) != 0 {
		t.Fatal("3*G != G+G+G")
	}
	if !onCurve(threeG) {
		t.Fatal("3*G not on curve")
	}
}

func TestOrderAnnihilatesGenerator(t *testing.T) {
	if scalarBaseMul(curveN) != nil {
		t.Fatal("N*G should be the point at infinity")
	}
}

func TestSignVerifyRoundtrip(t *testing.T) {
	priv := big.NewInt(123456789)
	pub := derivePublic(priv)
	if !onCurve(pub) {
		t.Fatal("derived public key not on curve")
	}
	z := new(big.Int).SetBytes([]byte("roundtrip message value"))
	r, s, err := ecSign(z, priv, newRFC6979(priv, z))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !ecVerify(z, r, s, pub) {
		t.Fatal("signature did not verify")
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	priv := big.NewInt(987654321)
	pub := derivePublic(priv)
	z := big.NewInt(42)
	r, s, err := ecSign(z, priv, newRFC6979(priv, z))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if ecVerify(big.NewInt(43), r, s, pub) {
		t.Fatal("tampered message verified")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv := big.NewInt(555)
	z := big.NewInt(7)
	r, s, err := ecSign(z, priv, newRFC6979(priv, z))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	other := derivePublic(big.NewInt(556))
	if ecVerify(z, r, s, other) {
		t.Fatal("signature verified under a different key")
	}
}

func TestSignBoundsRespected(t *testing.T) {
	priv := big.NewInt(31337)
	for i := int64(1); i <= 20; i++ {
		z := big.NewInt(i * 1000003)
		r, s, err := ecSign(z, priv, newRFC6979(priv, z))
		if err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
		if r.Sign() <= 0 || r.Cmp(ecdsaBound) >= 0 {
			t.Fatalf("r out of bounds: %s", r)
		}
		w := new(big.Int).ModInverse(s, curveN)
		if w.Sign() <= 0 || w.Cmp(ecdsaBound) >= 0 {
			t.Fatalf("s inverse out of bounds: %s", w)
		}
	}
}

func TestDeterministicNoncesRepeat(t *testing.T) {
	priv := big.NewInt(77777)
	z := big.NewInt(12345)
	k1, err := newRFC6979(priv, z).next()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	k2, err := newRFC6979(priv, z).next()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if k1.Cmp(k2) != 0 {
		t.Fatal("deterministic nonce differed across generators")
	}
	gen := newRFC6979(priv, z)
	first, _ := gen.next()
	second, _ := gen.next()
	if first.Cmp(second) == 0 {
		t.Fatal("retry sequence repeated the rejected nonce")
	}
}

func TestRandomNonceInRange(t *testing.T) {
	var src randomNonce
	for i := 0; i < 10; i++ {
		k, err := src.next()
		if err != nil {
			t.Fatalf("nonce: %v", err)
		}
		if k.Sign() <= 0 || k.Cmp(curveN) >= 0 {
			t.Fatalf("nonce out of range: %s", k)
		}
	}
}
