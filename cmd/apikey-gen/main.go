// Package main is a utility for generating API keys and their stored hashes.
// The backend stores only the HMAC-SHA256 digest of an API key, never the raw
// value, so this tool is used when manually seeding or verifying api_keys
// records without running the full server. It prints the plaintext key, the
// display prefix, and the digest computed with the given HMAC secret; the
// digest can be inserted directly into the api_keys table.
//
// Usage:
//
//	FEEDBASE_AUTH_API_KEYS_HMAC_SECRET=<secret> apikey-gen [env]
//
// env defaults to "live".
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/feedbase/feedbase/internal/auth"
)

func main() {
	secret := os.Getenv("FEEDBASE_AUTH_API_KEYS_HMAC_SECRET")
	if secret == "" {
		log.Fatal("FEEDBASE_AUTH_API_KEYS_HMAC_SECRET must be set (same value the server uses)")
	}

	env := "live"
	if len(os.Args) > 1 {
		env = os.Args[1]
	}

	hasher, err := auth.NewKeyHasher(secret)
	if err != nil {
		log.Fatalf("Invalid HMAC secret: %v", err)
	}

	key, displayPrefix, err := auth.GenerateAPIKey("fdb", env)
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	fmt.Printf("key:        %s\n", key)
	fmt.Printf("key_prefix: %s\n", displayPrefix)
	fmt.Printf("key_hash:   %s\n", hasher.Hash(key))
}
