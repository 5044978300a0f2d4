// Command verify checks the configured signing keys without touching the
// trading path: it derives the public keys, signs a sample request per
// venue and self-verifies the signatures. Run it after any key rotation.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"stark-arb-bot/internal/config"
	"stark-arb-bot/internal/sign"
	"stark-arb-bot/internal/venue"
)

func main() {
	envFile := flag.String("env", ".env", "env file with signing keys")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fatal(err)
	}

	now := time.Now().UTC()
	checkVenue(venue.Edgex, sign.Key{
		Venue:         venue.Edgex,
		PrivateKeyHex: os.Getenv("EDGEX_PRIVATE_KEY"),
		Account:       os.Getenv("EDGEX_ACCOUNT_ID"),
		PublicKey:     os.Getenv("EDGEX_PUBLIC_KEY"),
		Deterministic: true,
	}, sign.Request{
		Method:    "GET",
		Path:      "/api/v1/private/account/getPositionList",
		Timestamp: now,
	})
	checkVenue(venue.Paradex, sign.Key{
		Venue:         venue.Paradex,
		PrivateKeyHex: os.Getenv("PARADEX_PRIVATE_KEY"),
		Account:       os.Getenv("PARADEX_ACCOUNT_ADDRESS"),
		PublicKey:     os.Getenv("PARADEX_PUBLIC_KEY"),
		Deterministic: true,
	}, sign.Request{
		Method:    "GET",
		Path:      "/positions",
		Timestamp: now,
	})
}

func checkVenue(v venue.ID, key sign.Key, sample sign.Request) {
	fmt.Printf("== %s ==\n", v)
	if key.PrivateKeyHex == "" {
		fmt.Println("  no private key configured, skipping")
		return
	}
	signer, err := sign.New(key)
	if err != nil {
		fatal(fmt.Errorf("%s: %w", v, err))
	}
	fmt.Printf("  public key: %s\n", signer.PublicKey())
	signed, err := signer.SignRequest(sample)
	if err != nil {
		fatal(fmt.Errorf("%s: sign sample request: %w", v, err))
	}
	fmt.Printf("  sample %s %s signed and self-verified\n", sample.Method, sample.Path)
	keys := make([]string, 0, len(signed.Headers))
	for k := range signed.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("    %s: %s\n", k, signed.Headers[k])
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "verify:", err)
	os.Exit(1)
}
