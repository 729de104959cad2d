package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"framelens/internal/config"
	"framelens/internal/fileutil"
	"framelens/internal/jobstore"
	"framelens/internal/textutil"
)

var sourceKindByExtension = map[string]jobstore.SourceKind{
	".mp4":  jobstore.SourceVideo,
	".avi":  jobstore.SourceVideo,
	".mov":  jobstore.SourceVideo,
	".mkv":  jobstore.SourceVideo,
	".jpg":  jobstore.SourceImage,
	".jpeg": jobstore.SourceImage,
	".png":  jobstore.SourceImage,
	".zip":  jobstore.SourceArchive,
}

func detectSourceKind(name string) (jobstore.SourceKind, bool) {
	kind, ok := sourceKindByExtension[strings.ToLower(filepath.Ext(name))]
	return kind, ok
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var company string
	var campaign string
	var campaignDate string
	var product string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Queue a campaign upload for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(company) == "" || strings.TrimSpace(campaign) == "" {
				return errors.New("--company and --campaign are required")
			}

			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}
			kind, ok := detectSourceKind(info.Name())
			if !ok {
				return fmt.Errorf("unsupported file extension %q", filepath.Ext(info.Name()))
			}

			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store jobstore.Store) error {
				jobID := textutil.JobID(company, campaign, time.Now())
				staged := filepath.Join(cfg.Paths.UploadDir, jobID+strings.ToLower(filepath.Ext(info.Name())))
				if err := fileutil.CopyFileVerified(absPath, staged); err != nil {
					return fmt.Errorf("stage upload: %w", err)
				}

				job := &jobstore.Job{
					ID:               jobID,
					Company:          company,
					Campaign:         campaign,
					CampaignDate:     campaignDate,
					Product:          product,
					OriginalFilename: info.Name(),
					SourcePath:       staged,
					SourceKind:       kind,
					Status:           jobstore.StatusPending,
				}
				if err := store.Create(cmd.Context(), job); err != nil {
					_ = os.Remove(staged)
					return fmt.Errorf("queue job: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s job %s (%s)\n", kind, jobID, info.Name())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "Company the campaign belongs to")
	cmd.Flags().StringVar(&campaign, "campaign", "", "Campaign name")
	cmd.Flags().StringVar(&campaignDate, "date", "", "Campaign date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&product, "product", "", "Product featured in the campaign")
	return cmd
}
