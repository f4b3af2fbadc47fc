// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding for artifact
// metadata. Wrapping fxamacker/cbor behind this package pins the
// encoder options in one place: every encoder in the tree produces
// identical bytes for identical data.
package codec
