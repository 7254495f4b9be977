package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ternarybob/covera/internal/httpclient"
	"github.com/ternarybob/covera/internal/models"
)

var startCategories []string
var startWatch bool

var startCmd = &cobra.Command{
	Use:   "start <start-url>",
	Short: "Start an ingestion job for a partner site",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status and progress of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var stopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Request a cooperative stop of a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

var listActive bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Stream progress events for a job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var resultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Print the persisted results of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the category keys accepted by start --category",
	Args:  cobra.NoArgs,
	RunE:  runCategories,
}

func init() {
	startCmd.Flags().StringSliceVar(&startCategories, "category", nil, "Category key to keep (repeatable); all categories when omitted")
	startCmd.Flags().BoolVarP(&startWatch, "watch", "w", false, "Watch the job after starting it")
	listCmd.Flags().BoolVar(&listActive, "active", false, "Only list jobs whose pipeline is running")
}

func runStart(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	started, err := client.StartJob(cmd.Context(), models.StartJobRequest{
		StartURL:           args[0],
		SelectedCategories: startCategories,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(started)
	}
	fmt.Printf("Started job %s\n", started.JobID)

	if startWatch {
		return watch(client, started.JobID)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	status, err := client.GetStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(status)
	}

	fmt.Printf("Job:     %s\n", status.JobID)
	fmt.Printf("Status:  %s\n", status.Status)
	fmt.Printf("Active:  %t\n", status.Active)
	fmt.Printf("Updated: %s\n", status.UpdatedAt)
	if len(status.Progress) > 0 {
		fmt.Println("Progress:")
		fmt.Print(formatProgress(status.Progress))
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.StopJob(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Stop requested for job %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	jobs, err := client.ListJobs(cmd.Context())
	if err != nil {
		return err
	}

	if listActive {
		ids, err := client.ActiveJobs(cmd.Context())
		if err != nil {
			return err
		}
		active := make(map[string]bool, len(ids))
		for _, id := range ids {
			active[id] = true
		}
		filtered := jobs[:0]
		for _, job := range jobs {
			if active[job.ID] {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	if jsonOut {
		return printJSON(jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTART URL\tCREATED")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", job.ID, job.Status, job.StartURL, job.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return watch(client, args[0])
}

func runResults(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	records, err := client.Results(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPRICE\tCATEGORY\tELIGIBLE\tPROFILE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%.2f %s\t%s\t%t\t%s\n",
			truncate(r.Product.Name, 48), r.Product.Price, r.Product.Currency, r.Product.Category,
			r.Enrichment.Eligible, r.Enrichment.RiskProfile)
	}
	return w.Flush()
}

func runCategories(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	categories, err := client.Categories(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(categories)
	}
	for _, c := range categories {
		fmt.Printf("%-20s %s\n", c.Key, c.DisplayName)
	}
	return nil
}

func watch(client *httpclient.Client, jobID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return client.Watch(ctx, jobID, func(e httpclient.Event) error {
		if jsonOut {
			return printJSON(e)
		}
		switch e.Type {
		case "job_status":
			line := fmt.Sprintf("[status] %v", e.Payload["status"])
			if msg, ok := e.Payload["error"].(string); ok && msg != "" {
				line += " error=" + msg
			}
			fmt.Println(line)
		case "job_progress":
			if progress, ok := e.Payload["progress"].(map[string]interface{}); ok {
				fmt.Printf("[progress] %s", strings.ReplaceAll(formatProgress(progress), "\n  ", " "))
			}
		}
		return nil
	})
}

func formatProgress(progress map[string]interface{}) string {
	keys := make([]string, 0, len(progress))
	for k := range progress {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s=%v\n", k, progress[k])
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
