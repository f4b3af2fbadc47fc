// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command framework for the conveyor binary:
// a [Command] tree with flag parsing, help rendering, typo suggestions
// for unknown commands and flags, and struct-tag flag binding. Each
// subcommand package returns a *Command; the tree is assembled in
// cmd/conveyor/commands.
package cli
