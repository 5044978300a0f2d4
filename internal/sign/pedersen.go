package sign

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// Pedersen hash base points (Starkware constants). pedersenShift is the
// starting point; each input felt is split into its low 248 bits and high
// 4 bits, committed against its own pair of points.
var (
	pedersenShift = &point{
		X: mustBig("49ee3eba8c1600700ee1b87eb599f16716b0b1022947733551fde4050ca6804"),
		Y: mustBig("3ca0cfe4b3bc6ddf346d49d06ea0ed34e621062c0e056c1d0405d266e10268a"),
	}
	pedersenP1 = &point{
		X: mustBig("234287dcbaffe7f969c748655fca9e58fa8120b6d56eb0c1080d17957ebe47b"),
		Y: mustBig("3b056f100f96fb21e889527d41f4e39940135dd7a6c94cc6ed0268ee89e5615"),
	}
	pedersenP2 = &point{
		X: mustBig("4fa56f376c83db33f9dab2656558f3399099ec1de5e3018b7a6932dba8aa378"),
		Y: mustBig("3fa0984c931c9e38113e0c0e47e4401562761f92a7a23b45168f4e80ff5b54d"),
	}
	pedersenP3 = &point{
		X: mustBig("4ba4cc166be8dec764910f75b45f74b40c690c74709e90f3aa372f0bd2d6997"),
		Y: mustBig("40301cf5c1751f4b971e46c4ede85fcac5c59a5ce5ae7c48151f27b24b219c"),
	}
	pedersenP4 = &point{
		X: mustBig("54302dcb0e6cc1c6e44cca8f61a63bb2ca65048d53fb325d36ff12c49a58202"),
		Y: mustBig("1b77b3e37d13504b348046268d8ae25ce98ad783c25561a879dcc77e99c2426"),
	}

	pedersenLowMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 248), big.NewInt(1))

	// StarkNet selectors are Keccak-256 truncated into the field.
	starknetKeccakMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

	maxShortString = 31
)

func pedersenHash(a, b *big.Int) (*big.Int, error) {
	acc := pedersenShift.clone()
	for i, v := range []*big.Int{a, b} {
		if v.Sign() < 0 || v.Cmp(curveP) >= 0 {
			return nil, fmt.Errorf("pedersen input %d out of field range", i)
		}
		low := new(big.Int).And(v, pedersenLowMask)
		high := new(big.Int).Rsh(v, 248)
		lowPt, highPt := pedersenP1, pedersenP2
		if i == 1 {
			lowPt, highPt = pedersenP3, pedersenP4
		}
		acc = pointAdd(acc, scalarMul(low, lowPt))
		acc = pointAdd(acc, scalarMul(high, highPt))
	}
	return new(big.Int).Set(acc.X), nil
}

// hashOnElements chains pedersen over the elements and finishes with the
// element count, matching StarkNet's compute_hash_on_elements.
func hashOnElements(elems []*big.Int) (*big.Int, error) {
	acc := big.NewInt(0)
	var err error
	for _, e := range elems {
		acc, err = pedersenHash(acc, e)
		if err != nil {
			return nil, err
		}
	}
	return pedersenHash(acc, big.NewInt(int64(len(elems))))
}

func starknetKeccak(data []byte) *big.Int {
	digest := crypto.Keccak256(data)
	v := new(big.Int).SetBytes(digest)
	return v.And(v, starknetKeccakMask)
}

// shortStringFelt encodes an ASCII string of at most 31 bytes as a felt,
// the Cairo short-string convention.
func shortStringFelt(s string) (*big.Int, error) {
	if len(s) > maxShortString {
		return nil, fmt.Errorf("short string %q exceeds %d bytes", s, maxShortString)
	}
	return new(big.Int).SetBytes([]byte(s)), nil
}

// stringFelt encodes arbitrary string data as a single felt: short strings
// directly, longer ones through starknet_keccak.
func stringFelt(s string) *big.Int {
	if len(s) <= maxShortString {
		v, _ := shortStringFelt(s)
		return v
	}
	return starknetKeccak([]byte(s))
}
