// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow provides validation, variable expansion, and
// condition evaluation for workflow definitions. It operates on the
// types in lib/schema; parsing lives in lib/workflowdef and execution
// in lib/runner.
package workflow
