package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/seodata/internal/config"
	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/uploader"
	"github.com/kalambet/seodata/internal/vectordb"
)

// --- pull ---

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch the configured Search Console window and store it as a new object",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		p, err := a.puller(cmd.Context())
		if err != nil {
			return err
		}
		res, err := p.Pull(cmd.Context())
		if err != nil {
			return err
		}
		printSuccess("Stored %d rows for %s in %s", res.Rows, res.Window, res.Object)
		return nil
	},
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Embed a stored report and upsert it into the vector collection",
	Long: `Embed a stored report and upsert it into the vector collection.

Examples:
  seodata upload
  seodata upload --object gsc_data_20240501120000123.json
  seodata upload --async`,
	RunE: func(cmd *cobra.Command, args []string) error {
		object, _ := cmd.Flags().GetString("object")
		async, _ := cmd.Flags().GetBool("async")

		if async {
			if object != "" {
				return fmt.Errorf("--object cannot be combined with --async; the server uploads its configured object")
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			id, err := queueUpload(cmd.Context(), client)
			if err != nil {
				return err
			}
			printSuccess("Queued upload job %s", id)
			return nil
		}

		a := newApp(cfg)
		defer a.Close()

		up, err := a.uploader(cmd.Context())
		if err != nil {
			return err
		}
		res, err := up.Upload(cmd.Context(), uploader.Request{Object: object})
		if err != nil {
			return fmt.Errorf("%s", uploader.FailureMessage(err))
		}
		if res.Skipped > 0 {
			printWarning("Skipped %d of %d rows", res.Skipped, res.Rows)
		}
		printSuccess("%s", res.Message())
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("object", "", "object to upload (default: uploader.object)")
	uploadCmd.Flags().Bool("async", false, "queue the upload on the running server")
}

func queueUpload(ctx context.Context, client *apiClient) (string, error) {
	resp, err := client.post(ctx, "/upload", map[string]any{"async": true})
	if err != nil {
		return "", err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	return result["job_id"], nil
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question using the stored reports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		a := newApp(cfg)
		defer a.Close()

		r, err := a.responder(cmd.Context())
		if err != nil {
			return err
		}
		answer, err := r.Ask(cmd.Context(), question)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Fprintf(out, "\n%s %s\n", colorize(colorBold, "Sources:"), strings.Join(answer.Sources, ", "))
		}
		return nil
	},
}

// --- reports ---

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List stored report objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		store, err := a.blobStore(cmd.Context())
		if err != nil {
			return err
		}
		objects, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(objects) == 0 {
			fmt.Fprintln(out, "No reports found.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, o := range objects {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", colorize(colorCyan, o.Name), o.Size, formatTime(o.Modified))
		}
		return tw.Flush()
	},
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pull and upload runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		if kind != "" && kind != storage.KindPull && kind != storage.KindUpload {
			return fmt.Errorf("--kind must be %q or %q", storage.KindPull, storage.KindUpload)
		}

		a := newApp(cfg)
		defer a.Close()

		ledger, err := a.runLedger()
		if err != nil {
			return err
		}
		runs, err := ledger.ListRuns(cmd.Context(), kind, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			if runs == nil {
				runs = []storage.Run{}
			}
			return writeIndentedJSON(out, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		printRuns(out, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("kind", "", "filter by kind (pull or upload)")
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.Flags().Bool("json", false, "print runs as JSON")
}

func printRuns(w io.Writer, runs []storage.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range runs {
		status := colorize(colorGreen, r.Status)
		if r.Status == storage.StatusFailed {
			status = colorize(colorRed, r.Status)
		}
		detail := r.Detail
		if detail == "" {
			detail = r.Object
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			formatTime(r.StartedAt), r.Kind, status, r.Rows, detail)
	}
	tw.Flush()
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs <id>",
	Short: "Show the state of a queued upload job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}
		var job storage.Job
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		return writeIndentedJSON(cmd.OutOrStdout(), job)
	},
}

// --- vectors ---

var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Manage the vector collection",
}

var vectorsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configured collection on the local sqlite vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		store, err := a.vectorStore(cmd.Context())
		if err != nil {
			return err
		}
		name := cfg.Vector.Collection
		if err := vectordb.CreateCollection(cmd.Context(), store, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Collection %s ready\n", name)
		return nil
	},
}

func init() {
	vectorsCmd.AddCommand(vectorsInitCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys that can be set",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(out, k)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
