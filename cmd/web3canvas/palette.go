package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/nodes"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

func newPaletteCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "palette",
		Short: "List the node kinds and their handles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			palette := nodes.Catalog().Palette()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(palette)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tCATEGORY\tINPUTS\tOUTPUTS")
			for _, p := range palette {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Kind, p.Category,
					handles(p, types.HandleTarget), handles(p, types.HandleSource))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the palette as JSON")
	return cmd
}

func handles(p catalog.PaletteEntry, t types.HandleType) string {
	var ids []string
	for _, h := range p.Handles {
		if h.Type == t {
			ids = append(ids, h.ID)
		}
	}
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}
