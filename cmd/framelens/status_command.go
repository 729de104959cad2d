package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"framelens/internal/classifier"
	"framelens/internal/config"
	"framelens/internal/daemon"
	"framelens/internal/deps"
	"framelens/internal/jobstore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report daemon, store, and dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store jobstore.Store) error {
				out := cmd.OutOrStdout()

				lockPath := filepath.Join(cfg.Paths.LogDir, daemon.LockFileName)
				_, lockErr := os.Stat(lockPath)
				fmt.Fprintf(out, "Daemon lock present: %s (%s)\n", yesNo(lockErr == nil), lockPath)

				fmt.Fprintf(out, "Store backend:       %s\n", cfg.Store.Backend)
				health, err := store.Health(cmd.Context())
				if err != nil {
					fmt.Fprintf(out, "Store health:        error: %v\n", err)
				} else {
					fmt.Fprintf(out, "Store health:        %d total (%d pending, %d processing, %d completed, %d failed)\n",
						health.Total, health.Pending, health.Processing, health.Completed, health.Failed)
				}

				fmt.Fprintln(out, "\nMedia tools:")
				for _, status := range deps.CheckBinaries(deps.MediaToolRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary())) {
					marker := "ok"
					if !status.Available {
						marker = "missing"
						if status.Optional {
							marker = "missing (optional)"
						}
					}
					fmt.Fprintf(out, "  %-8s %s\n", status.Name, marker)
				}
				if version, err := deps.FFmpegVersion(cmd.Context(), cfg.FFmpegBinary()); err == nil {
					fmt.Fprintf(out, "  %s\n", version)
				}

				scorer := classifier.NewWeightsScorer(cfg.Paths.ModelPath)
				if err := scorer.Available(); err != nil {
					fmt.Fprintf(out, "\nScorer:              unavailable (%v)\n", err)
				} else {
					fmt.Fprintf(out, "\nScorer:              ready (%s)\n", cfg.Paths.ModelPath)
				}

				fmt.Fprintf(out, "OCR credential:      %s\n", yesNo(strings.TrimSpace(cfg.OCR.APIKey) != ""))
				fmt.Fprintf(out, "Blob sink:           %s\n", yesNo(cfg.BlobConfigured()))
				return nil
			})
		},
	}
}
