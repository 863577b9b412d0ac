package cmd

import (
	"fmt"

	"kb-bridge/core/storage"
	"kb-bridge/feature/imports"
	"kb-bridge/feature/integrity"
	"kb-bridge/feature/merge"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	integrityForeign string
	integrityObject  string
	integrityJSON    bool
)

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Perform integrity checks on the configured stores",
	Long: `Checks the versioned store schema, the foreign snapshots in object storage and,
when a foreign store is given, its collection configurations.`,
	RunE: runIntegrity,
}

func init() {
	integrityCmd.Flags().StringVar(&integrityForeign, "foreign", "", "Foreign store path to inspect")
	integrityCmd.Flags().StringVar(&integrityObject, "foreign-object", "", "Foreign store key in object storage to inspect")
	integrityCmd.Flags().BoolVar(&integrityJSON, "json", false, "Print the report as JSON")
	RootCmd.AddCommand(integrityCmd)
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	cfg, logg, err := setup()
	if err != nil {
		return err
	}
	defer logg.Sync()

	opts := integrity.Options{
		ExcludedTables: cfg.Engine.ExcludedTables,
		ContentFields:  cfg.Engine.ContentFields,
		Bucket:         cfg.Storage.Bucket,
		Prefix:         cfg.Storage.ForeignPrefix,
		Opener:         newOpener(cfg, logg),
		Logger:         logg,
	}
	if cfg.VCS.Backend != merge.BackendGit {
		if handle, err := merge.OpenStore(cfg, logg); err != nil {
			logg.Warn("Optional database connection failed", zap.Error(err))
		} else {
			defer handle.Close()
			opts.DB = handle.DB
		}
	}
	if client, err := storage.NewClient(cfg.Storage); err != nil {
		logg.Warn("Object storage unavailable", zap.Error(err))
	} else {
		opts.Client = client
	}

	svc := integrity.NewService(opts)
	ctx := cmd.Context()
	src := imports.ForeignSource{Path: integrityForeign, Object: integrityObject}

	if integrityJSON {
		return printJSON(svc.Report(ctx, src))
	}

	healthy := true
	if opts.DB != nil {
		logg.Info("Checking versioned schema...")
		report, err := svc.CheckSchema(ctx)
		if err != nil {
			logg.Error("Schema check failed", zap.Error(err))
			healthy = false
		} else if report.Matched {
			logg.Info("Versioned schema is intact.", zap.Int("tables", len(report.Tables)), zap.Strings("excluded", report.Excluded))
		} else {
			healthy = false
			for table, tr := range report.Tables {
				if tr.Status == "error" {
					logg.Warn("Table cannot be merged", zap.String("table", table), zap.String("error", tr.Error))
				}
			}
			for _, e := range report.Errors {
				logg.Error("Inspection Error", zap.String("error", e))
			}
		}
	}

	if opts.Client != nil {
		logg.Info("Checking foreign snapshots...")
		report, err := svc.CheckStructure(ctx)
		if err != nil {
			logg.Error("Structure check failed", zap.Error(err))
			healthy = false
		} else if len(report.Snapshots) == 0 {
			logg.Warn("No foreign snapshots found", zap.String("bucket", report.Bucket), zap.String("prefix", report.Prefix))
		} else {
			logg.Info("Foreign snapshots", zap.Strings("snapshots", report.Snapshots))
		}
	}

	if src.Path != "" || src.Object != "" {
		logg.Info("Checking collection configurations...")
		report, err := svc.CheckCollections(ctx, src)
		switch {
		case err != nil:
			logg.Error("Collection check failed", zap.Error(err))
			healthy = false
		case report.Status == "error":
			logg.Warn("Unreadable collection configurations", zap.Strings("collections", report.Invalid))
			healthy = false
		case report.Status == "legacy":
			logg.Warn("Collections written by an older store version", zap.Strings("collections", report.Legacy))
		default:
			logg.Info("Collection configurations are valid.", zap.Int("collections", len(report.Collections)))
		}
	}

	if !healthy {
		return fmt.Errorf("integrity checks reported problems")
	}
	return nil
}
