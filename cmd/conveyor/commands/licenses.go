// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/conveyorci/conveyor/cmd/conveyor/cli"
	"github.com/conveyorci/conveyor/lib/licensecheck"
)

// licensesParams holds the flags for "conveyor licenses".
type licensesParams struct {
	cli.JSONOutput
	Report string `flag:"report,r" desc:"dependency license report JSON file (required)"`
	Allow  string `flag:"allow"    desc:"semicolon-separated license allow-list (defaults to $ALLOWED_LICENSES)"`
}

// licensesCommand returns the "licenses" subcommand: the dependency
// license compliance gate.
func licensesCommand() *cli.Command {
	var params licensesParams

	return &cli.Command{
		Name:    "licenses",
		Summary: "Check a dependency license report against an allow-list",
		Description: `Check every entry of a dependency license report against an
allow-list of acceptable licenses. The report is a JSON array of
{name, version, license} objects, the format dependency-license
exporters emit.

A dependency with a license outside the allow-list, or with no
detected license at all, is a violation. Exit code 1 when any
violation is found, which is what a CI workflow step keys off.

The allow-list comes from --allow, or from the ALLOWED_LICENSES
environment variable when the flag is absent. Entries are separated
by semicolons and matched exactly (case included).`,
		Usage: "conveyor licenses --report <file> [--allow \"MIT;Apache-2.0\"]",
		Examples: []cli.Example{
			{
				Description: "Check against an explicit allow-list",
				Command:     `conveyor licenses --report licenses.json --allow "MIT;Apache 2.0;BSD-3-Clause"`,
			},
			{
				Description: "Use the workflow's ALLOWED_LICENSES variable",
				Command:     "conveyor licenses --report licenses.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("licenses", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: conveyor licenses --report <file> [flags]")
			}
			if params.Report == "" {
				return fmt.Errorf("--report is required")
			}

			allowValue := params.Allow
			if allowValue == "" {
				allowValue = os.Getenv("ALLOWED_LICENSES")
			}
			allowed := licensecheck.ParseAllowList(allowValue)
			if len(allowed) == 0 {
				return fmt.Errorf("no allow-list: pass --allow or set ALLOWED_LICENSES")
			}

			report, err := licensecheck.LoadReport(params.Report)
			if err != nil {
				return err
			}

			violations := licensecheck.Check(report, allowed)
			if done, err := params.EmitJSON(violations); done {
				if err != nil {
					return err
				}
				if len(violations) > 0 {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}

			if len(violations) == 0 {
				fmt.Printf("%d dependencies, all licenses allowed\n", len(report))
				return nil
			}
			fmt.Fprintf(os.Stderr, "%d license violation(s):\n", len(violations))
			for _, violation := range violations {
				fmt.Fprintf(os.Stderr, "  - %s\n", violation)
			}
			return &cli.ExitError{Code: 1}
		},
	}
}
