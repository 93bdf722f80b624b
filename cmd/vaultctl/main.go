// Command vaultctl is the operator tool for the storage engine: schema
// migrations, on-demand sweeps of expired uploads and tree consistency
// checks.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

// Seams for tests.
var (
	newApp       = server.NewApp
	openPostgres = repomanager.OpenPostgres
)

type options struct {
	configFile string
	dsn        string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "vaultctl",
		Short:        "Operate the cloudvault storage engine",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN, overrides the config file")

	rootCmd.AddCommand(newMigrateCmd(opts), newSweepCmd(opts), newFsckCmd(opts))
	return rootCmd
}

func (o *options) load() (*config.Config, error) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.LogFormat = logging.FormatConsole
	cfg.MetricsAddr = ""
	if o.configFile != "" {
		if err := config.ApplyFile(cfg, o.configFile); err != nil {
			return nil, err
		}
	}
	if o.dsn != "" {
		cfg.DatabaseDSN = o.dsn
	}
	return cfg, nil
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.DatabaseDSN == "" {
				return fmt.Errorf("migrate needs a database: set --dsn or database_dsn")
			}

			db, err := openPostgres(cmd.Context(), cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repomanager.NewPostgresRepositoryManager().RunMigrations(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired pending uploads and their blobs once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Sweep(cmd.Context())
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d, deleted %d, blobs deleted %d, blob failures %d\n",
					stats.Expired, stats.Deleted, stats.BlobsDeleted, stats.BlobFailures)
			}
			return err
		},
	}
}

func newFsckCmd(opts *options) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "Check that folder sizes match the files beneath them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			ownerID := owner
			if strings.Contains(owner, "@") {
				u, err := app.Engine.Users.FindByEmail(cmd.Context(), owner)
				if err != nil {
					return err
				}
				ownerID = u.ID
			}

			report, err := app.Engine.Checker.Check(cmd.Context(), ownerID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "owner %s: %d folders, %d files\n", report.OwnerID, report.Folders, report.Files)
			if report.Consistent() {
				fmt.Fprintln(out, "consistent")
				return nil
			}
			printDrift(out, report.Drift)
			return fmt.Errorf("%d folders with size drift", len(report.Drift))
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "user id or email to check")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func (o *options) open(ctx context.Context) (*server.App, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func printDrift(w io.Writer, drift []models.SizeDrift) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FOLDER\tSTORED\tACTUAL")
	for _, d := range drift {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", d.FolderID, d.StoredBytes, d.ActualBytes)
	}
	_ = tw.Flush()
}
