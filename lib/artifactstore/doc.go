// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactstore implements content-addressed storage for run
// artifacts: files produced by upload steps and artifact-mode step
// outputs.
//
// Artifacts are addressed by the BLAKE3 keyed hash of their
// uncompressed content and referenced externally by short art-*
// refs. Blobs are compressed on disk (lz4 by default, zstd for
// text-like content types) and may additionally be encrypted with
// XChaCha20-Poly1305 under per-artifact keys derived from a 32-byte
// master key. Metadata (filename, artifact name, sizes, compression
// tag, timestamps) is stored beside each blob as deterministically
// encoded CBOR.
//
// Layout under the store root:
//
//	blobs/<hh>/<64-hex>       compressed (possibly encrypted) content
//	meta/<hh>/<64-hex>.cbor   metadata record
package artifactstore
