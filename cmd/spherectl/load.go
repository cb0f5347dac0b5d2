package main

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/sphere/internal/loadgen"
)

// Default load configuration.
const (
	defaultProfiles    = 1000
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func newLoadCmd() *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Ingest synthetic creators into a running service and verify its valuations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTestTimeout)
			defer cancel()
			stats, err := loadgen.NewRunner(cfg).Run(ctx)
			if perr := printJSON(cmd.OutOrStdout(), stats); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVar(&cfg.Profiles, "profiles", defaultProfiles, "number of creators to generate")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent workers")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", loadgen.DefaultSettle, "wait between ingestion and reads")
	f.StringVar(&cfg.Platform, "platform", "instagram", "platform of generated creators")
	f.Uint64Var(&cfg.Seed, "seed", 0, "generator seed; 0 picks one")
	f.StringVar(&cfg.OutputDir, "output", "", "directory for the generated profiles")
	return cmd
}
