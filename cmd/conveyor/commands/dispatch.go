// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/conveyorci/conveyor/cmd/conveyor/cli"
	"github.com/conveyorci/conveyor/lib/dispatch"
	"github.com/conveyorci/conveyor/lib/event"
	"github.com/conveyorci/conveyor/lib/runner"
	"github.com/conveyorci/conveyor/lib/schema"
)

// dispatchParams holds the flags for "conveyor dispatch".
type dispatchParams struct {
	Config    string `flag:"config"    desc:"config file (defaults to $CONVEYOR_CONFIG)"`
	Event     string `flag:"event,e"   desc:"trigger event JSON file (required)"`
	Workflows string `flag:"workflows" desc:"workflow directory (defaults to the configured directory)"`
	Verbose   bool   `flag:"verbose,v" desc:"debug logging"`
}

// dispatchCommand returns the "dispatch" subcommand: trigger matching
// plus coordinated execution across a workflow directory.
func dispatchCommand() *cli.Command {
	var params dispatchParams

	return &cli.Command{
		Name:    "dispatch",
		Summary: "Run every workflow matching an event",
		Description: `Load all workflow files from a directory, match the event against
each workflow's triggers, and run the matches concurrently. Workflows
sharing a concurrency group are serialized; groups with
cancel_in_progress supersede the running workflow instead of waiting.

Each run writes its own JSONL run log under the configured run log
directory.`,
		Usage: "conveyor dispatch --event <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Dispatch a push event against the configured workflow directory",
				Command:     "conveyor dispatch --event push.json",
			},
			{
				Description: "Dispatch against a specific directory",
				Command:     "conveyor dispatch --event pr.json --workflows ./workflows",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("dispatch", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: conveyor dispatch --event <file> [flags]")
			}
			if params.Event == "" {
				return fmt.Errorf("--event is required")
			}
			return dispatchEvent(&params)
		},
	}
}

func dispatchEvent(params *dispatchParams) error {
	logger := cli.NewLogger(params.Verbose)

	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	workflowDir := params.Workflows
	if workflowDir == "" {
		workflowDir = cfg.Paths.Workflows
	}
	workflows, err := dispatch.LoadDir(workflowDir)
	if err != nil {
		return err
	}

	evt, err := event.Load(params.Event)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	timeout, err := cfg.DefaultStepTimeout()
	if err != nil {
		return err
	}

	// Each run gets its own runner and run log file; the artifact
	// store and default timeout are shared.
	runOne := func(ctx context.Context, name string, content *schema.WorkflowContent, variables map[string]string) (schema.RunResultContent, error) {
		runLog, err := runner.NewRunLog(runLogPath(cfg, name), logger)
		if err != nil {
			return schema.RunResultContent{}, err
		}
		defer runLog.Close()

		r := &runner.Runner{
			Store:          store,
			Logger:         logger.With("workflow", name),
			RunLog:         runLog,
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			DefaultTimeout: timeout,
		}
		return r.Run(ctx, name, content, variables)
	}

	dispatcher := &dispatch.Dispatcher{
		Run:         runOne,
		Coordinator: &dispatch.Coordinator{Logger: logger},
		Logger:      logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := dispatcher.Dispatch(ctx, workflows, evt)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("no workflows in %s match %s event\n", workflowDir, evt.Kind)
		return nil
	}

	failed := 0
	fmt.Println()
	for _, result := range results {
		fmt.Printf("  %-10s %s (%dms)\n", result.Conclusion, result.Workflow, result.DurationMS)
		if result.Conclusion != schema.ConclusionSuccess {
			failed++
		}
	}
	if failed > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
