package cmd

import (
	"encoding/json"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/ngbundle/ngbundle/internal/manifest"
)

type listFormat enumflag.Flag

const (
	tableFormat listFormat = iota
	jsonFormat
)

var listFormatIDs = map[listFormat][]string{
	tableFormat: {"table"},
	jsonFormat:  {"json"},
}

func newExternalsCommand(global *globalParams) *cobra.Command {
	format := tableFormat

	cmd := &cobra.Command{
		Use:   "externals",
		Short: "List the modules left out of the bundle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			workspace, cfg, err := global.load()
			if err != nil {
				return err
			}

			meta, err := manifest.Resolve(workspace, cfg.SourceRoot, cfg.Package)
			if err != nil {
				return err
			}

			if format == jsonFormat {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(meta.Externals.Strings())
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Pattern", "Kind")
			for _, p := range meta.Externals {
				kind := "module"
				if p.Namespace() {
					kind = "namespace"
				}
				if err := table.Append([]string{p.String(), kind}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().VarP(enumflag.New(&format, "format", listFormatIDs, enumflag.EnumCaseInsensitive), "format", "f", "output format (table, json)")
	return cmd
}
