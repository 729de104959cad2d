package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"framelens/internal/config"
	"framelens/internal/jobstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List queued and finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status jobstore.Status
			if strings.TrimSpace(statusFlag) != "" {
				parsed, ok := jobstore.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				status = parsed
			}

			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store jobstore.Store) error {
				jobs, err := store.List(cmd.Context(), jobstore.ListFilter{
					Status: status,
					Limit:  limit,
					Offset: offset,
				})
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobsTable(jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of jobs to skip")
	return cmd
}

func renderJobsTable(jobs []*jobstore.Job) string {
	headers := []string{"Job ID", "Company", "Campaign", "Status", "Frames", "Accepted", "Created"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Company,
			job.Campaign,
			string(job.Status),
			strconv.Itoa(job.FramesSampled),
			strconv.Itoa(job.FramesAccepted),
			job.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(headers, rows, aligns)
}
