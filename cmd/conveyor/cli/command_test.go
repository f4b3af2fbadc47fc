// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	t.Parallel()

	var ran []string
	root := &Command{
		Name: "conveyor",
		Subcommands: []*Command{
			{
				Name: "artifact",
				Subcommands: []*Command{
					{
						Name: "list",
						Run: func(args []string) error {
							ran = append(ran, "artifact list")
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"artifact", "list"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ran) != 1 || ran[0] != "artifact list" {
		t.Errorf("ran = %v", ran)
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	t.Parallel()

	root := &Command{
		Name: "conveyor",
		Subcommands: []*Command{
			{Name: "validate", Run: func([]string) error { return nil }},
			{Name: "dispatch", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"validte"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "validate"`) {
		t.Errorf("error = %q, want validate suggestion", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	t.Parallel()

	var event string
	var rest []string
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&event, "event", "", "event file")
			return flagSet
		},
		Run: func(args []string) error {
			rest = args
			return nil
		},
	}

	if err := command.Execute([]string{"--event", "push.json", "ci.yaml"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if event != "push.json" {
		t.Errorf("event = %q", event)
	}
	if len(rest) != 1 || rest[0] != "ci.yaml" {
		t.Errorf("positional args = %v", rest)
	}
}

func TestExecuteUnknownFlagSuggests(t *testing.T) {
	t.Parallel()

	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.String("event", "", "event file")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}

	err := command.Execute([]string{"--evnt", "push.json"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "--event") {
		t.Errorf("error = %q, want --event suggestion", err)
	}
}

func TestExecuteNoSubcommandShowsHelp(t *testing.T) {
	t.Parallel()

	root := &Command{
		Name:        "conveyor",
		Subcommands: []*Command{{Name: "validate", Summary: "Validate workflow files"}},
	}

	if err := root.Execute(nil); err == nil {
		t.Fatal("expected subcommand-required error")
	}
}

func TestPrintHelpListsSubcommands(t *testing.T) {
	t.Parallel()

	root := &Command{
		Name:    "conveyor",
		Summary: "Local CI workflow runner",
		Subcommands: []*Command{
			{Name: "run", Summary: "Run a workflow"},
			{Name: "validate", Summary: "Validate workflow files"},
		},
	}

	var out strings.Builder
	root.PrintHelp(&out)
	help := out.String()
	for _, want := range []string{"run", "Run a workflow", "validate", "conveyor <command>"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"run", "run", 0},
		{"run", "ran", 1},
		{"validte", "validate", 1},
		{"dispatch", "", 8},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
