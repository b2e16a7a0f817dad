package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/console"
	"github.com/xenking/mataresit-ops/internal/envswitch"
)

func newEnvCmd(rt *cli.Runtime) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "env",
		Short: "List, show or switch .env environments",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", ".", "directory holding .env.<name> files")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available environments",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				names, err := envswitch.List(dir)
				if err != nil {
					return err
				}
				cur, err := envswitch.Show(dir)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					rt.Out.Warn("No .env.<name> files in %s", dir)
					return nil
				}
				for _, n := range names {
					if n == cur.Name {
						rt.Out.Success("%s (active)", n)
						continue
					}
					rt.Out.Line("  %s", n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the active environment with secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cur, err := envswitch.Show(dir)
				if err != nil {
					return err
				}
				name := cur.Name
				if name == "" {
					name = "(unnamed)"
				}
				rt.Out.Title("Active environment: " + name)
				keys := make([]string, 0, len(cur.Vars))
				for k := range cur.Vars {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				kvs := make([]console.KV, 0, len(keys))
				for _, k := range keys {
					kvs = append(kvs, console.KV{Key: k, Value: cur.Vars[k]})
				}
				rt.Out.Pairs(kvs...)
				return nil
			},
		},
		&cobra.Command{
			Use:   "use <name>",
			Short: "Activate .env.<name>, backing up the current .env",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := envswitch.Use(dir, args[0]); err != nil {
					return err
				}
				rt.Out.Success("Switched to %s", args[0])
				return nil
			},
		},
	)
	return cmd
}
