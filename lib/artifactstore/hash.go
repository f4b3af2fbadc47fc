// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. All artifact hashes are this size.
type Hash [32]byte

// contentDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// artifact content. Domain separation keeps content hashes from ever
// colliding with hashes computed over other byte streams elsewhere in
// the system. The byte values are the ASCII encoding of the domain
// name, zero-padded to 32 bytes: readable in hex dumps without
// sacrificing any cryptographic property (keyed mode treats the key
// as an opaque 32-byte value). A fixed protocol constant — changing
// it invalidates every stored artifact address.
var contentDomainKey = [32]byte{
	'c', 'o', 'n', 'v', 'e', 'y', 'o', 'r', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
	't', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0,
}

// HashContent computes the content-domain BLAKE3 keyed hash of the
// given data. Hashes are always computed on uncompressed bytes so
// addresses survive compression algorithm changes.
func HashContent(data []byte) Hash {
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		// NewKeyed only fails for wrong key length, which the
		// fixed-size array rules out.
		panic("artifactstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in metadata, logs, and on-disk
// blob paths.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing artifact hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("artifact hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// RefPrefix is the prefix of short artifact references.
const RefPrefix = "art-"

// RefHexLength is the number of hex digits of the content hash
// carried in a short artifact reference.
const RefHexLength = 12

// FormatRef returns the short artifact reference for a content hash:
// the "art-" prefix followed by the first 12 hex characters. Short
// refs appear in step outputs, result records, and CLI output.
func FormatRef(hash Hash) string {
	return RefPrefix + hex.EncodeToString(hash[:RefHexLength/2])
}

// IsRef reports whether s looks like a short artifact reference.
func IsRef(s string) bool {
	if !strings.HasPrefix(s, RefPrefix) {
		return false
	}
	rest := strings.TrimPrefix(s, RefPrefix)
	if len(rest) != 12 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}
