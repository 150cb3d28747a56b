package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainBatch   = "retrievalstat/batch/v1"
	DomainPayload = "retrievalstat/payload/v1"
)

// TokenLength is the length of a batch token. It matches the maximum
// client request token length accepted by the counter stores.
const TokenLength = 36

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BatchToken derives the idempotency token of a batch from its raw records.
//
// The records are serialized canonically, hashed, and the 64-character hex
// digest is shortened to TokenLength characters: every second character
// followed by the last four. Replaying the same batch always yields the same
// token, so a retried commit is recognised by the store as already applied.
//
// An empty batch yields a valid token. Errors are only possible for Go values
// that a JSON decoder never produces.
func BatchToken(records []any) (string, error) {
	if records == nil {
		records = []any{}
	}
	canonical, err := MarshalCanonical(records)
	if err != nil {
		return "", fmt.Errorf("BatchToken: failed to marshal: %w", err)
	}
	return shortenDigest(hashWithDomain(DomainBatch, canonical)), nil
}

// MustBatchToken is like BatchToken but panics on error.
// Use only in tests or when records come straight from a JSON decoder.
func MustBatchToken(records []any) string {
	token, err := BatchToken(records)
	if err != nil {
		panic(err)
	}
	return token
}

// shortenDigest keeps every second character of a hex digest and appends
// its last four characters.
func shortenDigest(digest string) string {
	out := make([]byte, 0, len(digest)/2+4)
	for i := 0; i < len(digest); i += 2 {
		out = append(out, digest[i])
	}
	return string(out) + digest[len(digest)-4:]
}
