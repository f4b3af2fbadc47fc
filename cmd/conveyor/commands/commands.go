// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete conveyor CLI command tree.
package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/conveyorci/conveyor/cmd/conveyor/cli"
	"github.com/conveyorci/conveyor/lib/version"
)

// versionParams holds the flags for "conveyor version".
type versionParams struct {
	Full bool `flag:"full" desc:"include commit, build time, Go version, and platform"`
}

// versionCommand returns the "version" subcommand.
func versionCommand() *cli.Command {
	var params versionParams

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "conveyor version [--full]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(args []string) error {
			if params.Full {
				fmt.Printf("conveyor %s\n", version.Full())
			} else {
				fmt.Printf("conveyor %s\n", version.Short())
			}
			return nil
		},
	}
}

// Root builds and returns the complete conveyor CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "conveyor",
		Description: `Conveyor: local CI workflow runner.

Run lint/test workflows defined in YAML or JSONC files: trigger
matching against push and pull-request events, sequential step
execution with conditions and tolerated failures, artifact upload,
and concurrency groups with cancel-in-progress.`,
		Subcommands: []*cli.Command{
			runCommand(),
			validateCommand(),
			showCommand(),
			dispatchCommand(),
			licensesCommand(),
			artifactCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Run a workflow with a push event",
				Command:     "conveyor run ci.yaml --event push.json",
			},
			{
				Description: "Validate workflow files without running them",
				Command:     "conveyor validate workflows/*.yaml",
			},
			{
				Description: "Dispatch an event against a workflow directory",
				Command:     "conveyor dispatch --event push.json --workflows ~/.conveyor/workflows",
			},
			{
				Description: "Inspect stored artifacts",
				Command:     "conveyor artifact list",
			},
		},
	}
}
