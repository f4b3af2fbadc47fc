// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyorci/conveyor/cmd/conveyor/cli"
	"github.com/conveyorci/conveyor/lib/artifactstore"
)

// artifactCommand returns the "artifact" command group for inspecting
// the artifact store.
func artifactCommand() *cli.Command {
	return &cli.Command{
		Name:    "artifact",
		Summary: "Inspect and manage stored artifacts",
		Description: `Inspect the content-addressed artifact store that upload steps write
to. Artifacts are addressed by BLAKE3 content hash; the short art-
ref or any unique hash prefix works wherever a full hash does.`,
		Subcommands: []*cli.Command{
			artifactListCommand(),
			artifactGetCommand(),
			artifactRemoveCommand(),
			artifactKeygenCommand(),
		},
	}
}

type artifactListParams struct {
	cli.JSONOutput
	Config string `flag:"config" desc:"config file (defaults to $CONVEYOR_CONFIG)"`
}

func artifactListCommand() *cli.Command {
	var params artifactListParams

	return &cli.Command{
		Name:    "list",
		Summary: "List stored artifacts, newest first",
		Usage:   "conveyor artifact list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			store, err := openStoreFromConfig(params.Config)
			if err != nil {
				return err
			}
			artifacts, err := store.List()
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(artifacts); done {
				return err
			}

			if len(artifacts) == 0 {
				fmt.Println("no artifacts")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "REF\tNAME\tSIZE\tTYPE\tCREATED")
			for _, meta := range artifacts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					meta.Ref(), meta.Name, meta.Size, meta.ContentType,
					meta.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

type artifactGetParams struct {
	Config string `flag:"config"   desc:"config file (defaults to $CONVEYOR_CONFIG)"`
	Output string `flag:"output,o" desc:"write content to a file instead of stdout"`
}

func artifactGetCommand() *cli.Command {
	var params artifactGetParams

	return &cli.Command{
		Name:    "get",
		Summary: "Print or save an artifact's content",
		Usage:   "conveyor artifact get [flags] <ref-or-hash>",
		Examples: []cli.Example{
			{
				Description: "Print an artifact by short ref",
				Command:     "conveyor artifact get art-9f3a52c81b44",
			},
			{
				Description: "Save an artifact by hash prefix",
				Command:     "conveyor artifact get 9f3a52 -o payload.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor artifact get [flags] <ref-or-hash>")
			}
			store, err := openStoreFromConfig(params.Config)
			if err != nil {
				return err
			}
			content, _, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if params.Output != "" {
				return os.WriteFile(params.Output, content, 0o644)
			}
			_, err = os.Stdout.Write(content)
			return err
		},
	}
}

type artifactRemoveParams struct {
	Config string `flag:"config" desc:"config file (defaults to $CONVEYOR_CONFIG)"`
}

func artifactRemoveCommand() *cli.Command {
	var params artifactRemoveParams

	return &cli.Command{
		Name:    "rm",
		Summary: "Delete an artifact",
		Usage:   "conveyor artifact rm [flags] <ref-or-hash>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("rm", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor artifact rm [flags] <ref-or-hash>")
			}
			store, err := openStoreFromConfig(params.Config)
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func artifactKeygenCommand() *cli.Command {
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an artifact encryption key file",
		Description: `Generate a random 256-bit master key and write it hex-encoded to the
given path with owner-only permissions. Point artifacts.key_file in
the config at the file to enable at-rest encryption of artifact
blobs.`,
		Usage: "conveyor artifact keygen <path>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor artifact keygen <path>")
			}
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}

			key := make([]byte, artifactstore.KeySize)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote %d-byte key to %s\n", artifactstore.KeySize, path)
			return nil
		},
	}
}

// openStoreFromConfig is the list/get/rm shared setup path.
func openStoreFromConfig(configPath string) (*artifactstore.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return openStore(cfg, cli.NewLogger(false))
}
