package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Inferara/web3-canvas-sub000/internal/flowfile"
)

func newShareCmd(opts *rootOptions) *cobra.Command {
	var (
		base   string
		decode bool
	)
	cmd := &cobra.Command{
		Use:   "share FILE|URL",
		Short: "Print the share link of a flow file",
		Long: `Pack a flow file into a share link, or with --decode unpack a share link
back into a flow file on stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if decode {
				g, err := flowfile.FromShareURL(args[0])
				if err != nil {
					return err
				}
				return flowfile.Encode(out, g)
			}

			if base == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				base = cfg.Server.BaseURL
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "read %s", args[0])
			}
			g, err := flowfile.Import(data)
			if err != nil {
				return err
			}
			link, err := flowfile.ShareURL(base, g)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, link)
			return err
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "URL the link points at, defaults to server.base_url")
	cmd.Flags().BoolVarP(&decode, "decode", "d", false, "decode a share link instead")
	return cmd
}
