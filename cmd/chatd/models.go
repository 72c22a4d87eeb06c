package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatd/internal/config"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

func newModelsCmd(opts *options) *cobra.Command {
	var registryFile string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List selectable models",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := registryFile
			if path == "" && opts.configPath != "" {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				path = cfg.RegistryFile
			}
			reg, err := registry.Open(path)
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), reg.List(), asJSON)
		},
	}
	cmd.Flags().StringVar(&registryFile, "registry", "", "Extra model descriptors (.yaml, .json or .toml)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")
	return cmd
}

func printModels(w io.Writer, models []types.ModelDescriptor, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(types.ModelsResponse{Models: models})
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDATA TYPE\tTEMPLATE\tFEATURES")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.DataType, m.ChatTemplate, features(m))
	}
	return tw.Flush()
}

func features(m types.ModelDescriptor) string {
	var out []byte
	add := func(s string) {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s...)
	}
	if m.SupportsThinkingTag {
		add("think")
	}
	if m.UsesKVCache {
		add("kv-cache")
	}
	if m.Structured() {
		add("harmony")
	}
	if len(out) == 0 {
		return "-"
	}
	return string(out)
}
