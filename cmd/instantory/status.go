package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/instantory/internal/jobs"
)

func newStatusCmd() *cobra.Command {
	var (
		server   string
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a processing job",
		Long:  "Displays a job's status, progress and recorded errors. Use --watch to follow it until it finishes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), strings.TrimRight(server, "/"), args[0], watch, interval)
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "http://localhost:10000", "Instantory server base URL")
	cmd.Flags().BoolVar(&watch, "watch", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval for --watch")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, base, id string, watch bool, interval time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		job jobs.Job
		err error
	)
	if watch {
		job, err = waitForJob(ctx, out, base, id, interval)
	} else {
		job, err = fetchJob(ctx, base, id)
	}
	if err != nil {
		return err
	}
	if !watch {
		fmt.Fprint(out, formatJob(job))
	} else if job.Error != "" {
		fmt.Fprintf(out, "Errors: %s\n", job.Error)
	}
	return nil
}

// formatJob renders a job as an aligned key/value block.
func formatJob(job jobs.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:      %s\n", job.ID)
	fmt.Fprintf(&b, "Status:   %s\n", job.Status)
	fmt.Fprintf(&b, "Progress: %d%%\n", job.Progress)
	fmt.Fprintf(&b, "Items:    %d\n", job.Total)
	fmt.Fprintf(&b, "Message:  %s\n", job.Message)
	if job.Error != "" {
		b.WriteString("Errors:\n")
		for _, e := range strings.Split(job.Error, "; ") {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	return b.String()
}
