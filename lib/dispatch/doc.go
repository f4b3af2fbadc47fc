// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch matches trigger events against a set of workflows
// and runs the matches, serializing runs that share a concurrency
// group. A group admits one run at a time: a new run either waits for
// the in-flight run or, with cancel_in_progress, cancels it and takes
// its place.
package dispatch
