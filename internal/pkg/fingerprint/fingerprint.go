package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest length in bytes. 20 bytes (160 bits) keeps the
// fingerprint short enough for an indexed column while making an
// accidental collision between two distinct blobs negligible at any
// realistic corpus size.
const Size = 20

// HexLen is the length of the hex-encoded fingerprint string.
const HexLen = Size * 2

// Sum returns the content fingerprint of data as a lowercase hex string.
// Identical bytes always produce identical fingerprints; this is the
// dedup identity of a blob.
func Sum(data []byte) string {
	h, _ := blake2b.New(Size, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FromReader consumes r to EOF and returns its fingerprint. The reader
// is left at EOF; callers that need the bytes again must re-open or
// buffer the stream themselves.
func FromReader(r io.Reader) (string, error) {
	h, _ := blake2b.New(Size, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint: read stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether s looks like a fingerprint produced by this
// package (length and hex alphabet only, not a preimage check).
func Valid(s string) bool {
	if len(s) != HexLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
