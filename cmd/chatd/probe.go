package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatd/internal/hostprobe"
)

func newProbeCmd(opts *options) *cobra.Command {
	var hosts, path string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check which download hosts are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(opts.logLevel, opts.logFormat, cmd.ErrOrStderr())
			p := &hostprobe.Prober{Hosts: splitCSV(hosts), Path: path, Timeout: timeout, Logger: log}
			if len(p.Hosts) == 0 {
				p.Hosts = hostprobe.DefaultHosts
			}
			ok := p.Reachable(cmd.Context(), p.Hosts)
			for i, h := range p.Hosts {
				state := "unreachable"
				if ok[i] {
					state = "ok"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", h, state)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected\t%s\n", pick(p.Hosts, ok))
			return nil
		},
	}
	cmd.Flags().StringVar(&hosts, "hosts", "", "Comma separated hosts in preference order")
	cmd.Flags().StringVar(&path, "path", "", "Path requested on each host")
	cmd.Flags().DurationVar(&timeout, "timeout", hostprobe.DefaultTimeout, "Per-host timeout")
	return cmd
}

// pick returns the first reachable host, or the first host when none is.
func pick(hosts []string, ok []bool) string {
	for i, h := range hosts {
		if ok[i] {
			return h
		}
	}
	return hosts[0]
}
