// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes a workflow: steps run strictly in order,
// each through sh -c with its own timeout and process group. Step
// conditions gate execution on the run's aggregate status and prior
// step outcomes; a required step failure flips the run to failure and
// triggers the workflow's on_failure steps, while continue_on_error
// failures are recorded and tolerated.
//
// The runner writes a JSONL run log (one self-contained JSON object
// per line) so that progress is tailable and a killed run leaves a
// parseable record of every completed step.
package runner
