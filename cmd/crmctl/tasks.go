package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crm/internal/admin"
	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/i18n"
)

var (
	sweepOlderThan time.Duration

	tasksOrg   string
	tasksUser  string
	tasksLimit int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark abandoned PREPARED export tasks as ERROR",
	Long: `Sweep moves export tasks that stayed PREPARED with no progress for longer
than the given age to ERROR. Exports a running server is still writing record
progress after every page and are left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age := sweepOlderThan
		if !cmd.Flags().Changed("older-than") {
			age = settings.GetDuration(keyStaleAfter)
		}
		return withOps(cmd.Context(), func(ops *admin.Ops) error {
			n, err := ops.SweepStale(cmd.Context(), age)
			if err != nil {
				return err
			}
			if flagJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{"swept": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) marked ERROR\n", n)
			return nil
		})
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the export tasks of a user",
	Example: `  crmctl tasks --org org-1 --user u-1
  crmctl tasks --org org-1 --user u-1 --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOps(cmd.Context(), func(ops *admin.Ops) error {
			tasks, err := ops.Tasks(cmd.Context(), tasksOrg, tasksUser, tasksLimit)
			if err != nil {
				return err
			}
			if flagJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tasks)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRESOURCE\tSTATUS\tFILE\tCREATED")
			fmt.Fprintln(w, "--\t--------\t------\t----\t-------")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.ResourceType, t.Status, t.FileName,
					time.UnixMilli(t.CreateTime).Format(time.DateTime))
			}
			return w.Flush()
		})
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 2*time.Hour, "idle age after which a PREPARED task is abandoned (at least 10m)")

	tasksCmd.Flags().StringVar(&tasksOrg, "org", "", "organization id (required)")
	tasksCmd.Flags().StringVar(&tasksUser, "user", "", "user id (required)")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 20, "maximum tasks to list")
	_ = tasksCmd.MarkFlagRequired("org")
	_ = tasksCmd.MarkFlagRequired("user")
}

// withOps connects to the database and runs fn with Ops backed by the
// export task store.
func withOps(ctx context.Context, fn func(ops *admin.Ops) error) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	store := export.NewTaskStore(pool)
	pipeline := export.NewPipeline(export.Config{BaseDir: settings.GetString(keyExportBaseDir)},
		store, export.NewSupervisor(), field.DefaultRegistry(), i18n.MustBundle(i18n.ZhCN), nil)
	return fn(admin.New(url, pipeline, store))
}
