package sign

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"stark-arb-bot/internal/venue"
)

const testPrivateKey = "0x3c1e9550e66958296d11b60f8e8e7a7ad990d07fa65d5f7652c4a6c87d4e3cc"

func TestNewDispatchesByVenue(t *testing.T) {
	edgexSigner, err := New(Key{Venue: venue.Edgex, PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("edgex signer: %v", err)
	}
	if _, ok := edgexSigner.(*StarkEx); !ok {
		t.Fatalf("expected StarkEx for edgex, got %T", edgexSigner)
	}
	paradexSigner, err := New(Key{Venue: venue.Paradex, PrivateKeyHex: testPrivateKey, Account: "0x1234abcd"})
	if err != nil {
		t.Fatalf("paradex signer: %v", err)
	}
	if _, ok := paradexSigner.(*StarkNet); !ok {
		t.Fatalf("expected StarkNet for paradex, got %T", paradexSigner)
	}
	if _, err := New(Key{Venue: venue.ID("unknown"), PrivateKeyHex: testPrivateKey}); err == nil {
		t.Fatal("expected error for unknown venue")
	}
}

func TestParsePrivateKeyRejectsBadMaterial(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"not hex":      "0xzz",
		"zero":         "0x0",
		"beyond order": "0x" + strings.Repeat("f", 64),
	}
	for name, key := range cases {
		if _, err := parsePrivateKey(key); !errors.Is(err, ErrInvalidKeyMaterial) {
			t.Fatalf("%s: expected ErrInvalidKeyMaterial, got %v", name, err)
		}
	}
}

func TestParsePrivateKeyAcceptsPrefixedAndBare(t *testing.T) {
	a, err := parsePrivateKey(testPrivateKey)
	if err != nil {
		t.Fatalf("prefixed: %v", err)
	}
	b, err := parsePrivateKey(strings.TrimPrefix(testPrivateKey, "0x"))
	if err != nil {
		t.Fatalf("bare: %v", err)
	}
	if a.Cmp(b) != 0 {
		t.Fatal("prefixed and bare parses differ")
	}
}

func TestCheckPublicKeyMismatch(t *testing.T) {
	priv, _ := parsePrivateKey(testPrivateKey)
	pub := derivePublic(priv)
	if err := checkPublicKey(pub.X, feltHex(pub.X)); err != nil {
		t.Fatalf("matching key rejected: %v", err)
	}
	if err := checkPublicKey(pub.X, "0x1"); !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if err := checkPublicKey(pub.X, ""); err != nil {
		t.Fatalf("empty configured key should pass: %v", err)
	}
}

func TestStarkExSignRequest(t *testing.T) {
	signer, err := NewStarkEx(Key{Venue: venue.Edgex, PrivateKeyHex: testPrivateKey, Deterministic: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := Request{
		Method:    "GET",
		Path:      "/api/v1/private/account/getPositionList",
		Timestamp: time.UnixMilli(1717000000000),
	}
	signed, err := signer.SignRequest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.Venue != venue.Edgex {
		t.Fatalf("wrong venue: %s", signed.Venue)
	}
	if len(signed.Signature) != 128 {
		t.Fatalf("signature must be 128 hex chars, got %d", len(signed.Signature))
	}
	if signed.Headers["X-edgeX-Api-Timestamp"] != "1717000000000" {
		t.Fatalf("timestamp header: %q", signed.Headers["X-edgeX-Api-Timestamp"])
	}
	if signed.Headers["X-edgeX-Api-Signature"] != signed.Signature {
		t.Fatal("signature header does not match signature")
	}
}

func TestStarkExDeterministicSignatures(t *testing.T) {
	key := Key{Venue: venue.Edgex, PrivateKeyHex: testPrivateKey, Deterministic: true}
	a, _ := NewStarkEx(key)
	b, _ := NewStarkEx(key)
	req := Request{Method: "POST", Path: "/api/v1/private/order/createOrder",
		Params:    map[string]string{"size": "0.01", "price": "65000"},
		Timestamp: time.UnixMilli(1717000000000)}
	s1, err := a.SignRequest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	s2, err := b.SignRequest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if s1.Signature != s2.Signature {
		t.Fatal("deterministic signers disagreed on the same request")
	}
}

func TestCanonicalMessageContract(t *testing.T) {
	msg := CanonicalMessage(1717000000000, "get", "/api/v1/private/order/getOrderById",
		map[string]string{"orderId": "42", "accountId": "7"})
	want := "1717000000000GET/api/v1/private/order/getOrderByIdaccountId=7&orderId=42"
	if msg != want {
		t.Fatalf("canonical message:\n got %q\nwant %q", msg, want)
	}
	if strings.Contains(msg, "?") {
		t.Fatal("canonical message must not contain '?'")
	}
	noParams := CanonicalMessage(1, "POST", "/p", nil)
	if noParams != "1POST/p" {
		t.Fatalf("no-params message: %q", noParams)
	}
}

func TestReduceDigestIdempotent(t *testing.T) {
	h := new(big.Int).Lsh(big.NewInt(1), 255)
	once := ReduceDigest(h)
	twice := ReduceDigest(once)
	if once.Cmp(twice) != 0 {
		t.Fatal("reduction not idempotent")
	}
	if once.Cmp(curveP) >= 0 {
		t.Fatal("reduced digest outside field")
	}
	small := big.NewInt(12345)
	if ReduceDigest(small).Cmp(small) != 0 {
		t.Fatal("in-range digest must be unchanged")
	}
}

func TestStarkNetSignRequest(t *testing.T) {
	signer, err := NewStarkNet(Key{
		Venue:         venue.Paradex,
		PrivateKeyHex: testPrivateKey,
		Account:       "0x129f6e4bbd9c419c132745f33ba129f9d1873f919f43b6c19b30e1a958dc67",
		Deterministic: true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := Request{
		Method:    "POST",
		Path:      "/orders",
		Body:      `{"market":"BTC-USD-PERP"}`,
		Timestamp: time.Unix(1717000000, 0),
	}
	signed, err := signer.SignRequest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.Headers["PARADEX-TIMESTAMP"] != "1717000000" {
		t.Fatalf("timestamp header: %q", signed.Headers["PARADEX-TIMESTAMP"])
	}
	if !strings.HasPrefix(signed.Headers["PARADEX-STARKNET-ACCOUNT"], "0x") {
		t.Fatal("account header must be 0x-prefixed")
	}
	var parts []string
	if err := json.Unmarshal([]byte(signed.Headers["PARADEX-STARKNET-SIGNATURE"]), &parts); err != nil {
		t.Fatalf("signature header is not a JSON array: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("signature must hold r and s, got %d parts", len(parts))
	}
	for _, p := range parts {
		if _, ok := new(big.Int).SetString(strings.TrimPrefix(p, "0x"), 16); !ok {
			t.Fatalf("signature part %q is not hex", p)
		}
	}
}

func TestStarkNetDeterministicSignatures(t *testing.T) {
	key := Key{
		Venue:         venue.Paradex,
		PrivateKeyHex: testPrivateKey,
		Account:       "0xabc123",
		Deterministic: true,
	}
	a, _ := NewStarkNet(key)
	b, _ := NewStarkNet(key)
	req := Request{Method: "GET", Path: "/positions", Timestamp: time.Unix(1717000000, 0)}
	s1, err := a.SignRequest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	s2, err := b.SignRequest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if s1.Signature != s2.Signature {
		t.Fatal("deterministic signers disagreed on the same request")
	}
}

func TestStarkNetTimestampChangesDigest(t *testing.T) {
	signer, _ := NewStarkNet(Key{
		Venue: venue.Paradex, PrivateKeyHex: testPrivateKey,
		Account: "0xabc123", Deterministic: true,
	})
	req := Request{Method: "GET", Path: "/positions", Timestamp: time.Unix(1717000000, 0)}
	s1, _ := signer.SignRequest(req)
	req.Timestamp = req.Timestamp.Add(time.Second)
	s2, _ := signer.SignRequest(req)
	if s1.Message == s2.Message {
		t.Fatal("different timestamps hashed to the same digest")
	}
}

func TestStarkNetRejectsBadAccount(t *testing.T) {
	_, err := NewStarkNet(Key{Venue: venue.Paradex, PrivateKeyHex: testPrivateKey})
	if !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("missing account: expected ErrInvalidKeyMaterial, got %v", err)
	}
	_, err = NewStarkNet(Key{Venue: venue.Paradex, PrivateKeyHex: testPrivateKey, Account: "0xnothex"})
	if !errors.Is(err, ErrInvalidKeyMaterial) {
		t.Fatalf("bad account: expected ErrInvalidKeyMaterial, got %v", err)
	}
}
