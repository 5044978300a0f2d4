package sign

import (
	"math/big"
	"testing"
)

func TestPedersenHashStaysInField(t *testing.T) {
	inputs := [][2]*big.Int{
		{big.NewInt(0), big.NewInt(0)},
		{big.NewInt(1), big.NewInt(2)},
		{new(big.Int).Sub(curveP, big.NewInt(1)), big.NewInt(1)},
	}
	for i, in := range inputs {
		h, err := pedersenHash(in[0], in[1])
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if h.Sign() < 0 || h.Cmp(curveP) >= 0 {
			t.Fatalf("case %d: hash outside field: %s", i, h)
		}
	}
}

func TestPedersenHashRejectsOutOfRange(t *testing.T) {
	if _, err := pedersenHash(curveP, big.NewInt(0)); err == nil {
		t.Fatal("expected range error for input == P")
	}
	if _, err := pedersenHash(big.NewInt(0), new(big.Int).Add(curveP, big.NewInt(1))); err == nil {
		t.Fatal("expected range error for input > P")
	}
}

func TestPedersenHashOrderMatters(t *testing.T) {
	a, b := big.NewInt(3), big.NewInt(5)
	h1, err := pedersenHash(a, b)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := pedersenHash(b, a)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1.Cmp(h2) == 0 {
		t.Fatal("pedersen hash must not be commutative")
	}
}

func TestHashOnElementsCountSuffix(t *testing.T) {
	one, err := hashOnElements([]*big.Int{big.NewInt(7)})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	// Same leading element, different length: the trailing count must
	// separate them.
	two, err := hashOnElements([]*big.Int{big.NewInt(7), big.NewInt(0)})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if one.Cmp(two) == 0 {
		t.Fatal("element count not committed")
	}
}

func TestHashOnElementsDeterministic(t *testing.T) {
	elems := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	h1, err := hashOnElements(elems)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := hashOnElements(elems)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1.Cmp(h2) != 0 {
		t.Fatal("hash differed across runs")
	}
}

func TestStarknetKeccakMasked(t *testing.T) {
	bound := new(big.Int).Lsh(big.NewInt(1), 250)
	for _, s := range []string{"", "Request", "StarkNetDomain(name:felt,chainId:felt,version:felt)"} {
		v := starknetKeccak([]byte(s))
		if v.Cmp(bound) >= 0 {
			t.Fatalf("keccak of %q not masked to 250 bits", s)
		}
	}
}

func TestShortStringFelt(t *testing.T) {
	v, err := shortStringFelt("ab")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if v.Cmp(big.NewInt(0x6162)) != 0 {
		t.Fatalf("expected 0x6162, got %s", v.Text(16))
	}
	if _, err := shortStringFelt("this string is far too long to be a cairo short string"); err == nil {
		t.Fatal("expected error for >31 byte string")
	}
}

func TestStringFeltLongStrings(t *testing.T) {
	long := "/orders/0123456789abcdef0123456789abcdef0123456789abcdef"
	v := stringFelt(long)
	if v.Cmp(starknetKeccak([]byte(long))) != 0 {
		t.Fatal("long string must go through starknet keccak")
	}
	short := stringFelt("GET")
	want, _ := shortStringFelt("GET")
	if short.Cmp(want) != 0 {
		t.Fatal("short string must use the short-string encoding")
	}
}
