// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/conveyorci/conveyor/cmd/conveyor/cli"
	"github.com/conveyorci/conveyor/lib/schema"
	"github.com/conveyorci/conveyor/lib/workflowdef"
)

// showCommand returns the "show" subcommand for printing a workflow
// summary.
func showCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Summary: "Print a human-readable workflow summary",
		Description: `Parse a workflow file and print its triggers, variables, environment,
concurrency settings, and step sequence. Useful for reviewing what a
workflow will do before running it.`,
		Usage: "conveyor show <workflow-file>",
		Examples: []cli.Example{
			{
				Description: "Summarize the CI workflow",
				Command:     "conveyor show ci.yaml",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor show <workflow-file>")
			}

			path := args[0]
			content, err := workflowdef.ReadFile(path)
			if err != nil {
				return err
			}

			name := content.Name
			if name == "" {
				name = workflowdef.NameFromPath(path)
			}
			fmt.Printf("workflow: %s\n", name)
			if content.Description != "" {
				fmt.Printf("  %s\n", content.Description)
			}

			printTriggers(content.On)
			printConcurrency(content.Concurrency)
			printVariables(content.Variables)
			printEnv(content.Env)
			printSteps("steps", content.Steps)
			if len(content.OnFailure) > 0 {
				printSteps("on_failure", content.OnFailure)
			}
			return nil
		},
	}
}

func printTriggers(triggers *schema.Triggers) {
	if triggers == nil {
		fmt.Println("\ntriggers: none (manual run only)")
		return
	}
	fmt.Println("\ntriggers:")
	if triggers.Push != nil {
		if len(triggers.Push.Branches) > 0 {
			fmt.Printf("  push: branches %s\n", strings.Join(triggers.Push.Branches, ", "))
		} else {
			fmt.Println("  push: any branch")
		}
	}
	if triggers.PullRequest != nil {
		if len(triggers.PullRequest.Types) > 0 {
			fmt.Printf("  pull_request: types %s\n", strings.Join(triggers.PullRequest.Types, ", "))
		} else {
			fmt.Println("  pull_request: any type")
		}
	}
}

func printConcurrency(concurrency *schema.Concurrency) {
	if concurrency == nil {
		return
	}
	cancel := ""
	if concurrency.CancelInProgress {
		cancel = " (cancel in progress)"
	}
	fmt.Printf("\nconcurrency: %s%s\n", concurrency.Group, cancel)
}

func printVariables(variables map[string]schema.WorkflowVariable) {
	if len(variables) == 0 {
		return
	}
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nvariables:")
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	for _, name := range names {
		variable := variables[name]
		detail := ""
		switch {
		case variable.Required:
			detail = "(required)"
		case variable.Default != "":
			detail = fmt.Sprintf("default %q", variable.Default)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", name, detail, variable.Description)
	}
	tw.Flush()
}

func printEnv(env map[string]string) {
	if len(env) == 0 {
		return
	}
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nenv:")
	for _, name := range names {
		fmt.Printf("  %s=%s\n", name, env[name])
	}
}

func printSteps(heading string, steps []schema.WorkflowStep) {
	fmt.Printf("\n%s:\n", heading)
	for index, step := range steps {
		fmt.Printf("  %d. %s", index+1, step.Name)
		var notes []string
		if step.ID != "" {
			notes = append(notes, "id "+step.ID)
		}
		if step.ContinueOnError {
			notes = append(notes, "continue_on_error")
		}
		if step.Timeout != "" {
			notes = append(notes, "timeout "+step.Timeout)
		}
		if len(notes) > 0 {
			fmt.Printf("  [%s]", strings.Join(notes, ", "))
		}
		fmt.Println()

		if step.If != "" {
			fmt.Printf("     if: %s\n", step.If)
		}
		if step.Upload != nil {
			fmt.Printf("     upload: %s from %s\n", step.Upload.Name, step.Upload.Path)
		} else {
			fmt.Printf("     run: %s\n", firstLine(step.Run))
		}
		if step.Check != "" {
			fmt.Printf("     check: %s\n", firstLine(step.Check))
		}
	}
}

// firstLine truncates multi-line commands for the summary listing.
func firstLine(command string) string {
	line, rest, found := strings.Cut(strings.TrimSpace(command), "\n")
	if found && rest != "" {
		return line + " ..."
	}
	return line
}
