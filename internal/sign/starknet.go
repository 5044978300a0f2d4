package sign

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"stark-arb-bot/internal/venue"
)

// Paradex request signing headers. Header names are part of the venue API
// contract.
const (
	paradexAccountHeader   = "PARADEX-STARKNET-ACCOUNT"
	paradexSignatureHeader = "PARADEX-STARKNET-SIGNATURE"
	paradexTimestampHeader = "PARADEX-TIMESTAMP"

	paradexDomainName    = "Paradex"
	paradexDomainVersion = "1"
	paradexChainID       = "PRIVATE_SN_PARACLEAR"

	// Signed requests stay valid for this long; the venue rejects older
	// timestamps.
	paradexAuthTTL = 5 * time.Minute
)

var (
	starknetMessagePrefix = mustShortString("StarkNet Message")
	starknetDomainType    = starknetKeccak([]byte("StarkNetDomain(name:felt,chainId:felt,version:felt)"))
	paradexRequestType    = starknetKeccak([]byte("Request(method:felt,path:felt,body:felt,timestamp:felt,expiration:felt)"))
)

func mustShortString(s string) *big.Int {
	v, err := shortStringFelt(s)
	if err != nil {
		panic("sign: " + err.Error())
	}
	return v
}

// StarkNet signs Paradex requests with the venue's typed-data scheme:
// a pedersen hash chain domain-separated by name, chain id and version,
// signed with the account's stark key.
type StarkNet struct {
	key     Key
	priv    *big.Int
	pub     *point
	account *big.Int
	domain  *big.Int
}

func NewStarkNet(key Key) (*StarkNet, error) {
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
	accountHex := strings.TrimPrefix(strings.TrimSpace(key.Account), "0x")
	if accountHex == "" {
		return nil, fmt.Errorf("%w: account address is required", ErrInvalidKeyMaterial)
	}
	account, ok := new(big.Int).SetString(accountHex, 16)
	if !ok || account.Cmp(curveP) >= 0 {
		return nil, fmt.Errorf("%w: account address is not a valid felt", ErrInvalidKeyMaterial)
	}
	domain, err := domainHash()
	if err != nil {
		return nil, err
	}
	return &StarkNet{key: key, priv: priv, pub: pub, account: account, domain: domain}, nil
}

func (s *StarkNet) PublicKey() string {
	return feltHex(s.pub.X)
}

func (s *StarkNet) SignRequest(req Request) (SignedRequest, error) {
	ts := req.Timestamp.Unix()
	exp := req.Timestamp.Add(paradexAuthTTL).Unix()
	structHash, err := requestStructHash(req.Method, req.Path, req.Body, ts, exp)
	if err != nil {
		return SignedRequest{}, err
	}
	digest, err := hashOnElements([]*big.Int{starknetMessagePrefix, s.domain, s.account, structHash})
	if err != nil {
		return SignedRequest{}, err
	}
	r, sv, err := ecSign(digest, s.priv, s.key.nonces(digest, s.priv))
	if err != nil {
		return SignedRequest{}, err
	}
	if !ecVerify(digest, r, sv, s.pub) {
		return SignedRequest{}, ErrSignatureMismatch
	}
	sig := fmt.Sprintf(`["%s","%s"]`, feltHex(r), feltHex(sv))
	return SignedRequest{
		Venue:     venue.Paradex,
		Message:   feltHex(digest),
		Signature: sig,
		Timestamp: req.Timestamp,
		Headers: map[string]string{
			paradexAccountHeader:   "0x" + strings.TrimPrefix(strings.TrimSpace(s.key.Account), "0x"),
			paradexSignatureHeader: sig,
			paradexTimestampHeader: strconv.FormatInt(ts, 10),
		},
	}, nil
}

func domainHash() (*big.Int, error) {
	name, err := shortStringFelt(paradexDomainName)
	if err != nil {
		return nil, err
	}
	chain, err := shortStringFelt(paradexChainID)
	if err != nil {
		return nil, err
	}
	version, err := shortStringFelt(paradexDomainVersion)
	if err != nil {
		return nil, err
	}
	return hashOnElements([]*big.Int{starknetDomainType, name, chain, version})
}

func requestStructHash(method, path, body string, ts, exp int64) (*big.Int, error) {
	return hashOnElements([]*big.Int{
		paradexRequestType,
		stringFelt(strings.ToUpper(method)),
		stringFelt(path),
		stringFelt(body),
		big.NewInt(ts),
		big.NewInt(exp),
	})
}
