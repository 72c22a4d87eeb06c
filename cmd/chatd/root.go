package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// options holds flag values shared by all commands. Values set on the
// command line override the config file.
type options struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Local chat generation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CHATD_CONFIG"), "Config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (default info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: console|json (default console)")

	root.AddCommand(newServeCmd(opts), newModelsCmd(opts), newProbeCmd(opts))
	return root
}

// splitCSV splits a comma separated flag value, dropping blanks.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
