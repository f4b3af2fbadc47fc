// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func TestHashContentDeterministic(t *testing.T) {
	t.Parallel()

	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	if a != b {
		t.Error("same content produced different hashes")
	}
	c := HashContent([]byte("hello "))
	if a == c {
		t.Error("different content produced the same hash")
	}
}

func TestFormatParseHash(t *testing.T) {
	t.Parallel()

	hash := HashContent([]byte("round trip"))
	formatted := FormatHash(hash)
	if len(formatted) != 64 {
		t.Fatalf("formatted hash is %d chars, want 64", len(formatted))
	}
	parsed, err := ParseHash(formatted)
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != hash {
		t.Error("parsed hash does not match original")
	}

	if _, err := ParseHash("not-a-hash"); err == nil {
		t.Error("ParseHash accepted invalid input")
	}
}

func TestRefFormat(t *testing.T) {
	t.Parallel()

	hash := HashContent([]byte("ref test"))
	ref := FormatRef(hash)
	if !strings.HasPrefix(ref, RefPrefix) {
		t.Errorf("ref %q missing prefix %q", ref, RefPrefix)
	}
	if len(ref) != len(RefPrefix)+RefHexLength {
		t.Errorf("ref %q has wrong length", ref)
	}
	if !IsRef(ref) {
		t.Errorf("IsRef(%q) = false", ref)
	}
	if IsRef("not-a-ref") {
		t.Error("IsRef accepted a non-ref")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	t.Parallel()

	// Repetitive content compresses under every algorithm.
	content := bytes.Repeat([]byte("conveyor artifact compression test\n"), 200)

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()

			compressed, applied, err := CompressBlob(content, tag)
			if err != nil {
				t.Fatalf("CompressBlob: %v", err)
			}
			if applied != tag {
				t.Fatalf("applied tag = %v, want %v", applied, tag)
			}
			if tag != CompressionNone && len(compressed) >= len(content) {
				t.Errorf("compressed size %d not smaller than input %d", len(compressed), len(content))
			}

			restored, err := DecompressBlob(compressed, applied, len(content))
			if err != nil {
				t.Fatalf("DecompressBlob: %v", err)
			}
			if !bytes.Equal(restored, content) {
				t.Error("round trip did not restore original content")
			}
		})
	}
}

func TestCompressIncompressibleFallsBack(t *testing.T) {
	t.Parallel()

	content := make([]byte, 4096)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}

	compressed, tag, err := CompressBlob(content, CompressionLZ4)
	if err != nil {
		t.Fatalf("CompressBlob: %v", err)
	}
	if tag != CompressionNone {
		t.Fatalf("random content stored with tag %v, want none", tag)
	}
	if !bytes.Equal(compressed, content) {
		t.Error("uncompressed blob does not match input")
	}
}

func TestChooseCompression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        CompressionTag
	}{
		{"text/plain", CompressionZstd},
		{"application/json", CompressionZstd},
		{"application/x-ndjson", CompressionZstd},
		{"application/gzip", CompressionNone},
		{"image/png", CompressionNone},
		{"application/octet-stream", CompressionLZ4},
		{"", CompressionLZ4},
	}
	for _, tt := range tests {
		if got := ChooseCompression(tt.contentType); got != tt.want {
			t.Errorf("ChooseCompression(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	content := []byte(`{"event":"pull_request","number":42}`)
	meta, err := store.Put("pr-payload", "application/json", content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(content))
	}
	if meta.Name != "pr-payload" {
		t.Errorf("Name = %q", meta.Name)
	}

	got, gotMeta, err := store.Get(meta.Hash)
	if err != nil {
		t.Fatalf("Get by hash: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Get returned different content")
	}
	if gotMeta.ContentType != "application/json" {
		t.Errorf("ContentType = %q", gotMeta.ContentType)
	}

	// Short ref and bare prefix both resolve.
	if _, _, err := store.Get(meta.Ref()); err != nil {
		t.Errorf("Get by ref: %v", err)
	}
	if _, _, err := store.Get(meta.Hash[:8]); err != nil {
		t.Errorf("Get by prefix: %v", err)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Get("art-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown ref: err = %v, want ErrNotFound", err)
	}
}

func TestStoreDeduplicates(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("shared content")
	first, err := store.Put("first", "text/plain", content)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Put("second", "text/plain", content)
	if err != nil {
		t.Fatal(err)
	}
	if first.Hash != second.Hash {
		t.Fatal("same content produced different hashes")
	}
	if second.Name != "second" {
		t.Errorf("Name after re-put = %q, want %q", second.Name, "second")
	}

	all, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("List returned %d artifacts, want 1", len(all))
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put("a", "text/plain", []byte("artifact a")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put("b", "text/plain", []byte("artifact b")); err != nil {
		t.Fatal(err)
	}

	all, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d artifacts, want 2", len(all))
	}
	if all[0].CreatedAt.Before(all[1].CreatedAt) {
		t.Error("List is not newest first")
	}
}

func TestStoreFindByName(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	want, err := store.Put("test-results", "application/json", []byte(`{"passed":true}`))
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.FindByName("test-results")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if got.Hash != want.Hash {
		t.Error("FindByName returned wrong artifact")
	}

	if _, err := store.FindByName("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByName missing: err = %v, want ErrNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	meta, err := store.Put("doomed", "text/plain", []byte("delete me"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(meta.Ref()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Get(meta.Hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(meta.Ref()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: err = %v, want ErrNotFound", err)
	}
}

func TestStoreEncryptedRoundTrip(t *testing.T) {
	t.Parallel()

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	store, err := Open(dir, WithEncryption(key))
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("secret build log contents")
	meta, err := store.Put("build-log", "text/plain", content)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.Encrypted {
		t.Error("metadata does not mark artifact encrypted")
	}

	got, _, err := store.Get(meta.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("decrypted content does not match original")
	}

	// The same store opened without the key can stat but not read.
	plain, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := plain.Stat(meta.Hash); err != nil {
		t.Errorf("Stat without key: %v", err)
	}
	if _, _, err := plain.Get(meta.Hash); err == nil {
		t.Error("Get without key succeeded on encrypted artifact")
	}

	// A different key fails authentication.
	wrongKey := make([]byte, KeySize)
	if _, err := rand.Read(wrongKey); err != nil {
		t.Fatal(err)
	}
	wrong, err := Open(dir, WithEncryption(wrongKey))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := wrong.Get(meta.Hash); err == nil {
		t.Error("Get with wrong key succeeded")
	}
}

func TestStoreDedupKeepsEncryptedFlag(t *testing.T) {
	t.Parallel()

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	content := []byte("content shared across reopens")

	// Put through a plain store, then re-put the same content through
	// an encrypted store on the same directory. The blob on disk stays
	// plaintext, so the metadata must keep saying so.
	dir := t.TempDir()
	plain, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := plain.Put("report", "text/plain", content)
	if err != nil {
		t.Fatal(err)
	}

	encrypted, err := Open(dir, WithEncryption(key))
	if err != nil {
		t.Fatal(err)
	}
	again, err := encrypted.Put("report", "text/plain", content)
	if err != nil {
		t.Fatal(err)
	}
	if again.Hash != meta.Hash {
		t.Fatal("same content produced different hashes")
	}
	if again.Encrypted {
		t.Error("re-put marked a plaintext blob encrypted")
	}
	got, _, err := encrypted.Get(meta.Hash)
	if err != nil {
		t.Fatalf("Get after re-put: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Get after re-put returned wrong content")
	}

	// The reverse direction: an encrypted blob re-put through a plain
	// store keeps its encrypted flag.
	dir2 := t.TempDir()
	enc2, err := Open(dir2, WithEncryption(key))
	if err != nil {
		t.Fatal(err)
	}
	meta2, err := enc2.Put("report", "text/plain", content)
	if err != nil {
		t.Fatal(err)
	}
	plain2, err := Open(dir2)
	if err != nil {
		t.Fatal(err)
	}
	again2, err := plain2.Put("report", "text/plain", content)
	if err != nil {
		t.Fatal(err)
	}
	if !again2.Encrypted {
		t.Error("re-put cleared the encrypted flag on an encrypted blob")
	}
	got2, _, err := enc2.Get(meta2.Hash)
	if err != nil {
		t.Fatalf("Get after re-put without key: %v", err)
	}
	if !bytes.Equal(got2, content) {
		t.Error("Get after re-put returned wrong content")
	}
}

func TestEncryptBlobBindsContentHash(t *testing.T) {
	t.Parallel()

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("bound to its hash")
	hash := HashContent(plaintext)

	blob, err := EncryptBlob(plaintext, key, hash)
	if err != nil {
		t.Fatalf("EncryptBlob: %v", err)
	}
	if _, err := DecryptBlob(blob, key, hash); err != nil {
		t.Fatalf("DecryptBlob: %v", err)
	}

	otherHash := HashContent([]byte("different content"))
	if _, err := DecryptBlob(blob, key, otherHash); err == nil {
		t.Error("DecryptBlob succeeded under a different content hash")
	}

	// Tampering with the version byte fails authentication.
	tampered := bytes.Clone(blob)
	tampered[0] = 0x7f
	if _, err := DecryptBlob(tampered, key, hash); err == nil {
		t.Error("DecryptBlob accepted a tampered version byte")
	}
}

func TestDerivePerArtifactKeyDistinct(t *testing.T) {
	t.Parallel()

	master := make([]byte, KeySize)
	if _, err := rand.Read(master); err != nil {
		t.Fatal(err)
	}
	a, err := DerivePerArtifactKey(master, HashContent([]byte("a")))
	if err != nil {
		t.Fatal(err)
	}
	b, err := DerivePerArtifactKey(master, HashContent([]byte("b")))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("different artifacts derived the same key")
	}
	a2, err := DerivePerArtifactKey(master, HashContent([]byte("a")))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, a2) {
		t.Error("derivation is not deterministic")
	}
}
