package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/formnav/pkg/formnav"
)

func newSchemasCmd(_ *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List the navigation event kinds and their payload fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := formnav.NewRegistry()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tVERSION\tFIELDS\tDESCRIPTION")
			for _, kind := range formnav.AllKinds() {
				versions := registry.Versions(kind.String())
				if !all {
					versions = versions[len(versions)-1:]
				}
				for _, v := range versions {
					schema, _ := registry.GetVersion(kind.String(), v)
					desc := schema.Description
					if schema.Deprecated {
						desc = "(deprecated) " + desc
					}
					fmt.Fprintf(w, "%s\tv%d\t%s\t%s\n", kind, v, strings.Join(schema.Fields, ","), desc)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include superseded schema versions")
	return cmd
}
