package main

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/domain/flag"
)

func newToggleCmd(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <flag> <id> [on|off]",
		Short: "Set or flip a boolean flag and confirm the stored value",
		Long:  "Known flags: " + strings.Join(flag.Names(), ", ") + ".",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := flag.Parse(args[0])
			if err != nil {
				return err
			}
			var value *bool
			if len(args) == 3 {
				v, err := flag.ParseValue(args[2])
				if err != nil {
					return err
				}
				value = &v
			}

			t, err := rt.Env.Toggler(cmd.Context())
			if err != nil {
				return err
			}
			res, err := t.Toggle(cmd.Context(), name, args[1], value)
			if err != nil {
				if errors.Is(err, flag.ErrNotConfirmed) {
					rt.Out.Fail("%s %s: write not confirmed, read back %s", name, res.ID, onOff(res.After))
				}
				return err
			}

			switch {
			case res.Changed():
				rt.Out.Success("%s %s: %s -> %s", name, res.ID, onOff(res.Before), onOff(res.After))
			default:
				rt.Out.Line("%s %s already %s", name, res.ID, onOff(res.After))
			}
			return nil
		},
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
