// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/conveyorci/conveyor/cmd/conveyor/cli"
	"github.com/conveyorci/conveyor/lib/workflow"
	"github.com/conveyorci/conveyor/lib/workflowdef"
)

// validateCommand returns the "validate" subcommand for checking
// workflow files without running them.
func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate workflow files",
		Description: `Validate workflow definition files. Checks that the YAML or JSONC is
well-formed and conforms to the workflow schema: at least one step,
each step has a name, run and upload are mutually exclusive, timeouts
parse, condition expressions parse and reference earlier steps, and
so on.

Purely local: nothing is executed and no event is required.`,
		Usage: "conveyor validate <file...>",
		Examples: []cli.Example{
			{
				Description: "Validate a single workflow",
				Command:     "conveyor validate ci.yaml",
			},
			{
				Description: "Validate every workflow in a directory",
				Command:     "conveyor validate workflows/*.yaml",
			},
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: conveyor validate <file...>")
			}

			invalid := 0
			for _, path := range args {
				content, err := workflowdef.ReadFile(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					invalid++
					continue
				}

				issues := workflow.Validate(content)
				if len(issues) > 0 {
					fmt.Fprintf(os.Stderr, "%s: %d issue(s)\n", path, len(issues))
					for _, issue := range issues {
						fmt.Fprintf(os.Stderr, "  - %s\n", issue)
					}
					invalid++
					continue
				}

				fmt.Printf("%s: valid\n", path)
			}

			if invalid > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
