package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/query-reformulator/internal/core/methods"
	"github.com/kirillkom/query-reformulator/internal/core/registry"
)

func newMethodsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the registered reformulation methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.New()
			if err := methods.RegisterBuiltins(reg); err != nil {
				return err
			}
			infos := reg.Infos()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tVERSION\tCONTEXT\tSTRATEGY")
			for _, info := range infos {
				needsContext := "no"
				if info.RequiresContext {
					needsContext = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.Version, needsContext, info.Strategy)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
