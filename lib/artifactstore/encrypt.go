// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of all symmetric keys in the artifact
// encryption system: the master key (read from the configured key
// file) and the per-artifact keys derived from it.
const KeySize = 32

// EncryptedBlobVersion is the version byte prepended to all encrypted
// blobs. Included as additional authenticated data (AAD) in the AEAD
// Seal/Open call, so tampering with the version byte causes
// authentication failure.
const EncryptedBlobVersion byte = 0x01

// EncryptedBlobOverhead is the total byte overhead per encrypted
// blob: 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305
// tag).
const EncryptedBlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoPerArtifact is the "info" parameter to HKDF-SHA256 for
// per-artifact key derivation. Domain separation from any other
// derivation path; changing it invalidates all ciphertext encrypted
// under it.
var hkdfInfoPerArtifact = []byte("conveyor.artifact.v1")

// DerivePerArtifactKey derives the encryption key for one artifact
// from the master key and the artifact's content hash. Each artifact
// is encrypted under a unique key; the same content always derives
// the same key, preserving deduplication.
func DerivePerArtifactKey(masterKey []byte, contentHash Hash) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key is %d bytes, want %d", len(masterKey), KeySize)
	}

	info := make([]byte, len(hkdfInfoPerArtifact)+len(contentHash))
	copy(info, hkdfInfoPerArtifact)
	copy(info[len(hkdfInfoPerArtifact):], contentHash[:])

	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, masterKey, nil, info)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving per-artifact key: %w", err)
	}
	return key, nil
}

// EncryptBlob encrypts plaintext using XChaCha20-Poly1305 and returns
// the encrypted blob in the standard format:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag: N+16 bytes]
//
// The version byte and contentHash are included as additional
// authenticated data. The hash binding prevents blob swapping: a
// ciphertext moved to another artifact's address fails to open.
func EncryptBlob(plaintext []byte, key []byte, contentHash Hash) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	blob := make([]byte, 1+chacha20poly1305.NonceSizeX, len(plaintext)+EncryptedBlobOverhead)
	blob[0] = EncryptedBlobVersion

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	aad := encryptionAAD(contentHash)
	return aead.Seal(blob, nonce, plaintext, aad), nil
}

// DecryptBlob opens an encrypted blob produced by EncryptBlob.
// Returns an error when the blob is malformed, the version is
// unknown, or authentication fails.
func DecryptBlob(blob []byte, key []byte, contentHash Hash) ([]byte, error) {
	if len(blob) < EncryptedBlobOverhead {
		return nil, fmt.Errorf("encrypted blob is %d bytes, below the %d byte minimum", len(blob), EncryptedBlobOverhead)
	}
	if blob[0] != EncryptedBlobVersion {
		return nil, fmt.Errorf("unknown encrypted blob version 0x%02x", blob[0])
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, encryptionAAD(contentHash))
	if err != nil {
		return nil, fmt.Errorf("decrypting blob: %w", err)
	}
	return plaintext, nil
}

// encryptionAAD builds the additional authenticated data for a blob:
// the version byte followed by the content hash.
func encryptionAAD(contentHash Hash) []byte {
	aad := make([]byte, 1+len(contentHash))
	aad[0] = EncryptedBlobVersion
	copy(aad[1:], contentHash[:])
	return aad
}

// ReadKeyFile reads a 32-byte master key from a file containing its
// hex encoding (whitespace tolerated). Key files are generated with
// "conveyor artifact keygen".
func ReadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}

	decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	if len(decoded) != KeySize {
		return nil, fmt.Errorf("key file %s: key is %d bytes, want %d", path, len(decoded), KeySize)
	}
	return decoded, nil
}
