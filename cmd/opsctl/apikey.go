package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/console"
	"github.com/xenking/mataresit-ops/internal/domain/auth"
)

func newAPIKeyCmd(rt *cli.Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Inspect stored API keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "verify <key>",
			Short: "Check a raw key against the stored hashes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, v, err := rt.Env.APIKeys(cmd.Context())
				if err != nil {
					return err
				}
				info, err := v.Verify(cmd.Context(), args[0])
				if err != nil {
					rt.Out.Fail("%s: %v", auth.DisplayPrefix(args[0]), err)
					return err
				}
				rt.Out.Success("%s is valid", auth.DisplayPrefix(args[0]))
				rt.Out.Pairs(
					console.KV{Key: "ID", Value: info.ID},
					console.KV{Key: "Name", Value: info.Name},
					console.KV{Key: "User", Value: info.UserID},
					console.KV{Key: "Scopes", Value: strings.Join(info.Scopes, ", ")},
					console.KV{Key: "Expires", Value: expiry(info.ExpiresAt)},
				)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List API keys without their hashes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				repo, _, err := rt.Env.APIKeys(cmd.Context())
				if err != nil {
					return err
				}
				keys, err := repo.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(keys))
				for _, k := range keys {
					active := "yes"
					if !k.Active {
						active = "no"
					}
					rows = append(rows, []string{k.Prefix, k.Name, strings.Join(k.Scopes, ","), active, expiry(k.ExpiresAt)})
				}
				rt.Out.Table([]string{"Prefix", "Name", "Scopes", "Active", "Expires"}, rows)
				return nil
			},
		},
	)
	return cmd
}

func expiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.DateOnly)
}
