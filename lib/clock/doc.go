// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source with real and fake
// implementations. The fake clock advances only under test control,
// making duration measurement and timer-driven behavior deterministic.
package clock
