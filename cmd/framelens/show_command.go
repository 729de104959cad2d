package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"framelens/internal/blobstore"
	"framelens/internal/config"
	"framelens/internal/extractor"
	"framelens/internal/jobstore"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var withURL bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job's outcome and metrics summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store jobstore.Store) error {
				job, err := store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}

				out := cmd.OutOrStdout()
				printJob(out, job)

				if withURL {
					if !cfg.BlobConfigured() {
						return fmt.Errorf("blob sink is not configured; no download URL available")
					}
					blob, err := blobstore.New(cfg)
					if err != nil {
						return err
					}
					url, err := blob.PresignedURL(cmd.Context(), job.ID, 24*time.Hour)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "\nMetrics URL (24h): %s\n", url)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&withURL, "url", false, "Print a presigned metrics download URL")
	return cmd
}

func printJob(out io.Writer, job *jobstore.Job) {
	fmt.Fprintf(out, "Job:       %s\n", job.ID)
	fmt.Fprintf(out, "Company:   %s\n", job.Company)
	fmt.Fprintf(out, "Campaign:  %s\n", job.Campaign)
	if job.CampaignDate != "" {
		fmt.Fprintf(out, "Date:      %s\n", job.CampaignDate)
	}
	if job.Product != "" {
		fmt.Fprintf(out, "Product:   %s\n", job.Product)
	}
	fmt.Fprintf(out, "Source:    %s (%s)\n", job.OriginalFilename, job.SourceKind)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	if job.ProgressStage != "" {
		fmt.Fprintf(out, "Stage:     %s\n", job.ProgressStage)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
	}
	fmt.Fprintf(out, "Frames:    %d sampled, %d accepted, %d rejected, %d indeterminate\n",
		job.FramesSampled, job.FramesAccepted, job.FramesRejected, job.FramesIndeterminate)
	if job.CompletedAt != nil && job.StartedAt != nil {
		fmt.Fprintf(out, "Elapsed:   %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Second))
	}
	if job.BlobKey != "" {
		fmt.Fprintf(out, "Artifact:  %s\n", job.BlobKey)
	}
	if job.MetricsJSON != "" {
		printSummary(out, job.MetricsJSON)
	}
}

func printSummary(out io.Writer, metricsJSON string) {
	var summary map[string]extractor.MetricSummary
	if err := json.Unmarshal([]byte(metricsJSON), &summary); err != nil || len(summary) == 0 {
		return
	}
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := []string{"Metric", "Max", "Min", "Avg", "Last"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		m := summary[name]
		rows = append(rows, []string{
			name,
			formatMetric(m.Max),
			formatMetric(m.Min),
			formatMetric(m.Avg),
			formatMetric(m.Last),
		})
	}
	fmt.Fprintf(out, "\n%s\n", renderTable(headers, rows, aligns))
}

func formatMetric(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%.2f", value)
}
