// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conveyorci/conveyor/lib/codec"
)

// ErrNotFound is returned when no stored artifact matches the
// requested hash or ref.
var ErrNotFound = errors.New("artifact not found")

// Metadata is the per-artifact record stored beside each blob. It is
// encoded as deterministic CBOR under meta/<hh>/<hash>.cbor.
type Metadata struct {
	// Hash is the hex-encoded content hash of the plaintext.
	Hash string `cbor:"hash"`
	// Name is the artifact name given at upload time. Names are
	// labels, not addresses: two uploads of the same content under
	// different names share one blob and the later name wins.
	Name string `cbor:"name"`
	// ContentType is the declared MIME type of the content.
	ContentType string `cbor:"content_type"`
	// Size is the plaintext size in bytes.
	Size int64 `cbor:"size"`
	// StoredSize is the on-disk blob size after compression and,
	// when enabled, encryption.
	StoredSize int64 `cbor:"stored_size"`
	// Compression names the compression applied before storage.
	Compression string `cbor:"compression"`
	// Encrypted reports whether the blob is sealed with the store's
	// master key.
	Encrypted bool `cbor:"encrypted"`
	// CreatedAt is the UTC time the artifact was first stored.
	CreatedAt time.Time `cbor:"created_at"`
}

// Ref returns the short display ref for the artifact.
func (m Metadata) Ref() string {
	return RefPrefix + m.Hash[:RefHexLength]
}

// Store is a content-addressed artifact store rooted at a local
// directory. Blobs are compressed per content type and optionally
// encrypted with a per-artifact key derived from the store's master
// key. All methods are safe for concurrent use by separate processes
// in the usual POSIX rename sense: writes go through a temp file and
// an atomic rename.
type Store struct {
	root   string
	key    []byte
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEncryption enables blob encryption under the given 32-byte
// master key.
func WithEncryption(masterKey []byte) Option {
	return func(s *Store) { s.key = masterKey }
}

// WithLogger sets the logger used for non-fatal store warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens (creating if necessary) a store rooted at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		root:   dir,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key != nil && len(s.key) != KeySize {
		return nil, fmt.Errorf("master key is %d bytes, want %d", len(s.key), KeySize)
	}
	for _, sub := range []string{"blobs", "meta"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Put stores content under the given name and declared content type
// and returns its metadata. Storing content that already exists is a
// metadata-only update; the blob is not rewritten.
func (s *Store) Put(name, contentType string, content []byte) (Metadata, error) {
	hash := HashContent(content)
	hexHash := FormatHash(hash)

	meta := Metadata{
		Hash:        hexHash,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Encrypted:   s.key != nil,
		CreatedAt:   time.Now().UTC(),
	}

	blobPath := s.blobPath(hexHash)
	if info, err := os.Stat(blobPath); err == nil {
		// Blob already present: the blob is not rewritten, so its
		// stored size, compression, creation time, and encryption
		// state all describe the bytes on disk, not the store's
		// current key. Only the name and content type refresh. The
		// store's current encryption setting must not override the
		// recorded one: the same content put under a different key
		// configuration would mark a plaintext blob encrypted (or
		// the reverse) and break every later Get.
		if existing, err := s.readMetadata(hexHash); err == nil {
			meta.StoredSize = existing.StoredSize
			meta.Compression = existing.Compression
			meta.CreatedAt = existing.CreatedAt
			meta.Encrypted = existing.Encrypted
		} else {
			meta.StoredSize = info.Size()
			meta.Compression = CompressionNone.String()
			meta.Encrypted = blobLooksEncrypted(blobPath, info.Size())
		}
		if err := s.writeMetadata(meta); err != nil {
			return Metadata{}, err
		}
		return meta, nil
	}

	compressed, tag, err := CompressBlob(content, ChooseCompression(contentType))
	if err != nil {
		return Metadata{}, fmt.Errorf("compressing artifact %q: %w", name, err)
	}
	meta.Compression = tag.String()

	blob := compressed
	if s.key != nil {
		artifactKey, err := DerivePerArtifactKey(s.key, hash)
		if err != nil {
			return Metadata{}, err
		}
		blob, err = EncryptBlob(compressed, artifactKey, hash)
		if err != nil {
			return Metadata{}, fmt.Errorf("encrypting artifact %q: %w", name, err)
		}
	}
	meta.StoredSize = int64(len(blob))

	if err := writeFileAtomic(blobPath, blob); err != nil {
		return Metadata{}, fmt.Errorf("writing blob: %w", err)
	}
	if err := s.writeMetadata(meta); err != nil {
		return Metadata{}, err
	}

	s.logger.Debug("stored artifact",
		"name", name,
		"ref", meta.Ref(),
		"size", meta.Size,
		"stored_size", meta.StoredSize,
		"compression", meta.Compression)
	return meta, nil
}

// Get retrieves the plaintext content and metadata for a hash or ref.
func (s *Store) Get(hashOrRef string) ([]byte, Metadata, error) {
	meta, err := s.Stat(hashOrRef)
	if err != nil {
		return nil, Metadata{}, err
	}

	blob, err := os.ReadFile(s.blobPath(meta.Hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Metadata{}, fmt.Errorf("%w: blob for %s missing", ErrNotFound, meta.Ref())
		}
		return nil, Metadata{}, fmt.Errorf("reading blob: %w", err)
	}

	hash, err := ParseHash(meta.Hash)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("metadata for %s: %w", meta.Ref(), err)
	}

	if meta.Encrypted {
		if s.key == nil {
			return nil, Metadata{}, fmt.Errorf("artifact %s is encrypted and the store has no key", meta.Ref())
		}
		artifactKey, err := DerivePerArtifactKey(s.key, hash)
		if err != nil {
			return nil, Metadata{}, err
		}
		blob, err = DecryptBlob(blob, artifactKey, hash)
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("artifact %s: %w", meta.Ref(), err)
		}
	}

	tag, err := ParseCompressionTag(meta.Compression)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("metadata for %s: %w", meta.Ref(), err)
	}
	content, err := DecompressBlob(blob, tag, int(meta.Size))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("artifact %s: %w", meta.Ref(), err)
	}

	if HashContent(content) != hash {
		return nil, Metadata{}, fmt.Errorf("artifact %s: content hash mismatch", meta.Ref())
	}
	return content, meta, nil
}

// Stat returns the metadata for a hash or ref without reading the
// blob. Refs may be abbreviated; an ambiguous prefix is an error.
func (s *Store) Stat(hashOrRef string) (Metadata, error) {
	hexHash, err := s.resolve(hashOrRef)
	if err != nil {
		return Metadata{}, err
	}
	return s.readMetadata(hexHash)
}

// Delete removes an artifact's blob and metadata. Deleting an
// artifact that does not exist returns ErrNotFound.
func (s *Store) Delete(hashOrRef string) error {
	hexHash, err := s.resolve(hashOrRef)
	if err != nil {
		return err
	}
	if err := os.Remove(s.metaPath(hexHash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing metadata: %w", err)
	}
	if err := os.Remove(s.blobPath(hexHash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing blob: %w", err)
	}
	return nil
}

// List returns metadata for every stored artifact, newest first.
func (s *Store) List() ([]Metadata, error) {
	var all []Metadata
	metaRoot := filepath.Join(s.root, "meta")
	err := filepath.WalkDir(metaRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".cbor") {
			return nil
		}
		hexHash := strings.TrimSuffix(filepath.Base(path), ".cbor")
		meta, err := s.readMetadata(hexHash)
		if err != nil {
			s.logger.Warn("skipping unreadable artifact metadata",
				"path", path,
				"error", err)
			return nil
		}
		all = append(all, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Hash < all[j].Hash
	})
	return all, nil
}

// FindByName returns the most recently stored artifact with the given
// name.
func (s *Store) FindByName(name string) (Metadata, error) {
	all, err := s.List()
	if err != nil {
		return Metadata{}, err
	}
	for _, meta := range all {
		if meta.Name == name {
			return meta, nil
		}
	}
	return Metadata{}, fmt.Errorf("%w: no artifact named %q", ErrNotFound, name)
}

// resolve maps a full hex hash, an art- ref, or an unambiguous hash
// prefix to the full hex hash of a stored artifact.
func (s *Store) resolve(hashOrRef string) (string, error) {
	prefix := strings.ToLower(strings.TrimPrefix(hashOrRef, RefPrefix))
	if _, err := ParseHash(prefix); err == nil {
		return prefix, nil
	}
	if len(prefix) < 4 {
		return "", fmt.Errorf("ref %q is too short to resolve", hashOrRef)
	}
	for _, c := range prefix {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", fmt.Errorf("ref %q is not hexadecimal", hashOrRef)
		}
	}

	shardDir := filepath.Join(s.root, "meta", prefix[:2])
	entries, err := os.ReadDir(shardDir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, hashOrRef)
	}
	if err != nil {
		return "", fmt.Errorf("resolving ref %q: %w", hashOrRef, err)
	}

	var matches []string
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".cbor")
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, hashOrRef)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ref %q is ambiguous (%d matches)", hashOrRef, len(matches))
	}
}

func (s *Store) blobPath(hexHash string) string {
	return filepath.Join(s.root, "blobs", hexHash[:2], hexHash)
}

func (s *Store) metaPath(hexHash string) string {
	return filepath.Join(s.root, "meta", hexHash[:2], hexHash+".cbor")
}

func (s *Store) readMetadata(hexHash string) (Metadata, error) {
	data, err := os.ReadFile(s.metaPath(hexHash))
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, hexHash)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("reading metadata: %w", err)
	}
	var meta Metadata
	if err := codec.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata for %s: %w", hexHash, err)
	}
	return meta, nil
}

func (s *Store) writeMetadata(meta Metadata) error {
	data, err := codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := writeFileAtomic(s.metaPath(meta.Hash), data); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// blobLooksEncrypted inspects an on-disk blob whose metadata sidecar
// is missing. Encrypted blobs always start with EncryptedBlobVersion
// and are at least EncryptedBlobOverhead bytes; anything else is
// treated as plaintext.
func blobLooksEncrypted(path string, size int64) bool {
	if size < EncryptedBlobOverhead {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	var first [1]byte
	if _, err := io.ReadFull(file, first[:]); err != nil {
		return false
	}
	return first[0] == EncryptedBlobVersion
}

// writeFileAtomic writes data to path via a temp file in the same
// directory and an atomic rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
