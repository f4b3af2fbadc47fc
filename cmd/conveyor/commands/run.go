// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/conveyorci/conveyor/cmd/conveyor/cli"
	"github.com/conveyorci/conveyor/lib/event"
	"github.com/conveyorci/conveyor/lib/runner"
	"github.com/conveyorci/conveyor/lib/schema"
	"github.com/conveyorci/conveyor/lib/workflow"
	"github.com/conveyorci/conveyor/lib/workflowdef"
)

// runParams holds the flags for "conveyor run".
type runParams struct {
	Config  string   `flag:"config"    desc:"config file (defaults to $CONVEYOR_CONFIG)"`
	Event   string   `flag:"event,e"   desc:"trigger event JSON file"`
	Vars    []string `flag:"var"       desc:"KEY=VALUE workflow variable (repeatable)"`
	EnvFile string   `flag:"env-file"  desc:"dotenv file added to the step environment"`
	Result  string   `flag:"result"    desc:"run log path (defaults under the configured run log directory)"`
	Verbose bool     `flag:"verbose,v" desc:"debug logging"`
}

// runCommand returns the "run" subcommand for executing a workflow file.
func runCommand() *cli.Command {
	var params runParams

	return &cli.Command{
		Name:    "run",
		Summary: "Run a workflow file",
		Description: `Execute a workflow definition file. Steps run sequentially; a failed
required step skips the remaining steps (unless their conditions say
otherwise) and fails the run. Tolerated failures (continue_on_error)
keep the run green while recording the step's own failure outcome.

The trigger event provides EVENT_* variables (branch, SHA, payload)
to the workflow. Without --event the workflow runs with only its
declared variable defaults, --var values, and environment lookups.

Step stdout/stderr stream to the terminal; the structured execution
record is written as JSONL to the run log.`,
		Usage: "conveyor run [flags] <workflow-file>",
		Examples: []cli.Example{
			{
				Description: "Run the CI workflow for a push event",
				Command:     "conveyor run ci.yaml --event push.json",
			},
			{
				Description: "Override a workflow variable",
				Command:     `conveyor run ci.yaml --var ALLOWED_LICENSES="MIT;Apache-2.0"`,
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("run", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor run [flags] <workflow-file>")
			}
			return runWorkflow(args[0], &params)
		},
	}
}

func runWorkflow(path string, params *runParams) error {
	logger := cli.NewLogger(params.Verbose)

	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	content, err := workflowdef.ReadFile(path)
	if err != nil {
		return err
	}
	name := content.Name
	if name == "" {
		name = workflowdef.NameFromPath(path)
	}

	// Variable sources, lowest to highest priority below the
	// environment: event variables, then explicit --var values.
	provided := map[string]string{}
	if params.Event != "" {
		evt, err := event.Load(params.Event)
		if err != nil {
			return err
		}
		maps.Copy(provided, evt.Variables())
	}
	for _, pair := range params.Vars {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return fmt.Errorf("invalid --var %q: expected KEY=VALUE", pair)
		}
		provided[key] = value
	}

	variables, err := workflow.ResolveVariables(content.Variables, provided, os.Getenv)
	if err != nil {
		return err
	}

	baseEnv := os.Environ()
	if params.EnvFile != "" {
		extra, err := godotenv.Read(params.EnvFile)
		if err != nil {
			return fmt.Errorf("reading env file %s: %w", params.EnvFile, err)
		}
		for _, key := range sortedKeys(extra) {
			baseEnv = append(baseEnv, key+"="+extra[key])
		}
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	resultPath := params.Result
	if resultPath == "" {
		resultPath = runLogPath(cfg, name)
	}
	runLog, err := runner.NewRunLog(resultPath, logger)
	if err != nil {
		return err
	}
	defer runLog.Close()

	timeout, err := cfg.DefaultStepTimeout()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner.Runner{
		Store:          store,
		Logger:         logger,
		RunLog:         runLog,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		DefaultTimeout: timeout,
		BaseEnv:        baseEnv,
	}

	result, err := r.Run(ctx, name, content, variables)
	if err != nil {
		return err
	}

	printRunResult(result, resultPath)
	if result.Conclusion != schema.ConclusionSuccess {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// printRunResult writes the human-readable run summary to stdout.
func printRunResult(result schema.RunResultContent, logPath string) {
	fmt.Println()
	for _, step := range result.StepResults {
		line := fmt.Sprintf("  %-20s %s", step.Status, step.Name)
		if step.Status != schema.StepStatusSkipped {
			line += fmt.Sprintf(" (%dms)", step.DurationMS)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%s: %s in %dms\n", result.Workflow, result.Conclusion, result.DurationMS)
	if result.ErrorMessage != "" {
		fmt.Printf("  %s\n", result.ErrorMessage)
	}
	fmt.Printf("run log: %s\n", logPath)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
