package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/instantory/internal/jobs"
	"github.com/zulandar/instantory/internal/orchestrator"
	"golang.org/x/term"
)

type submitOpts struct {
	server      string
	kind        string
	instruction string
	wait        bool
	interval    time.Duration
}

func newSubmitCmd() *cobra.Command {
	var opts submitOpts

	cmd := &cobra.Command{
		Use:   "submit <url[=name]>...",
		Short: "Submit files to a running server for processing",
		Long: `Submits a batch of files to an Instantory server and prints the job ID.

Each argument is a URL, optionally followed by =name to set the original
filename used for type detection. Local paths are sent as file:// URLs and
must be readable by the server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "http://localhost:10000", "Instantory server base URL")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "restrict to inventory or documents (default: both)")
	cmd.Flags().StringVarP(&opts.instruction, "instruction", "i", "", "free-text instruction passed to the analyzer")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&opts.interval, "interval", 2*time.Second, "polling interval for --wait")
	return cmd
}

func submitPath(kind string) (string, error) {
	switch strings.ToLower(kind) {
	case "":
		return "/api/jobs", nil
	case "inventory", "images", "image":
		return "/api/process-inventory", nil
	case "documents", "document", "docs":
		return "/api/process-documents", nil
	}
	return "", fmt.Errorf("unknown kind %q (want inventory or documents)", kind)
}

// parseFileArg splits "url[=name]". Paths without a scheme become absolute
// file URLs; the name defaults to the last path element.
func parseFileArg(arg string) (orchestrator.File, error) {
	raw, name := arg, ""
	// Query strings contain '=' too; a name must look like a filename.
	if i := strings.LastIndex(arg, "="); i >= 0 {
		if n := arg[i+1:]; strings.Contains(n, ".") && !strings.ContainsAny(n, "/&?") {
			raw, name = arg[:i], n
		}
	}
	if raw == "" {
		return orchestrator.File{}, fmt.Errorf("empty file argument %q", arg)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return orchestrator.File{}, fmt.Errorf("resolve %q: %w", raw, err)
		}
		u = &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	}
	if name == "" {
		name = path.Base(u.Path)
	}
	return orchestrator.File{URL: u.String(), Name: name}, nil
}

type submitResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

func runSubmit(ctx context.Context, out io.Writer, opts submitOpts, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint, err := submitPath(opts.kind)
	if err != nil {
		return err
	}
	files := make([]orchestrator.File, 0, len(args))
	for _, a := range args {
		f, err := parseFileArg(a)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	body, err := json.Marshal(map[string]any{"files": files, "instruction": opts.instruction})
	if err != nil {
		return fmt.Errorf("submit: encode: %w", err)
	}
	base := strings.TrimRight(opts.server, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("submit: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("submit: server returned %d: %s", resp.StatusCode, sr.Error)
	}
	fmt.Fprintf(out, "Submitted %d files as job %s\n", len(files), sr.TaskID)

	if !opts.wait {
		return nil
	}
	job, err := waitForJob(ctx, out, base, sr.TaskID, opts.interval)
	if err != nil {
		return err
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Errors: %s\n", job.Error)
	}
	if job.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Message)
	}
	return nil
}

// waitForJob polls the job until it is terminal. On a terminal a single
// progress line is redrawn in place.
func waitForJob(ctx context.Context, out io.Writer, base, id string, interval time.Duration) (jobs.Job, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	tty := isTerminal(out)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last jobs.Job
	for {
		job, err := fetchJob(ctx, base, id)
		if err != nil {
			return jobs.Job{}, err
		}
		if job != last {
			line := fmt.Sprintf("[%3d%%] %-22s %s", job.Progress, job.Status, job.Message)
			if tty {
				fmt.Fprintf(out, "\r\033[K%s", line)
			} else {
				fmt.Fprintln(out, line)
			}
			last = job
		}
		if job.Status.Terminal() {
			if tty {
				fmt.Fprintln(out)
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return jobs.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

var errJobGone = errors.New("job not found (expired or unknown)")

func fetchJob(ctx context.Context, base, id string) (jobs.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("status: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return jobs.Job{}, fmt.Errorf("status %s: %w", id, errJobGone)
	}
	if resp.StatusCode != http.StatusOK {
		return jobs.Job{}, fmt.Errorf("status %s: server returned %d", id, resp.StatusCode)
	}
	var job jobs.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return jobs.Job{}, fmt.Errorf("status %s: decode: %w", id, err)
	}
	return job, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
