package cmd

import (
	"fmt"

	"kb-bridge/core/bookkeeping"
	"kb-bridge/feature/imports"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importPath     string
	importObject   string
	importFilter   string
	importIncAuto  bool
	importDetailed bool
	importJSON     bool
	importRes      resolutionFlags
)

// importCmd is the parent command for foreign store imports.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Detect and resolve conflicts when importing a foreign store",
	Long: `Analyze an import of a foreign Chroma store into the local pgvector store
and execute it with the chosen resolutions.

A filter file narrows and renames collections:

  collections:
    - name: "archive_2024_*"
      import_into: archive
      documents: ["doc_*"]
    - name: notes
      import_into: notes`,
}

var importPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview the conflicts of an import",
	RunE:  runImportPreview,
}

var importExecuteCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute an import with resolutions",
	Long: `Execute an import. Every target collection is written in one batch after all
batches are computed. Conflicts that cannot be resolved are skipped and reported.

Examples:
  import execute --foreign ./exports/team --default-strategy skip --yes
  import execute --foreign-object team/chroma.sqlite3 --filter filter.yaml --resolutions res.json`,
	RunE: runImportExecute,
}

func init() {
	for _, c := range []*cobra.Command{importPreviewCmd, importExecuteCmd} {
		c.Flags().StringVar(&importPath, "foreign", "", "Foreign store path (directory or database file)")
		c.Flags().StringVar(&importObject, "foreign-object", "", "Foreign store key in object storage")
		c.Flags().StringVar(&importFilter, "filter", "", "Filter file (JSON or YAML)")
		c.Flags().BoolVar(&importJSON, "json", false, "Print the full result as JSON")
		c.MarkFlagsMutuallyExclusive("foreign", "foreign-object")
		c.MarkFlagsOneRequired("foreign", "foreign-object")
	}
	importPreviewCmd.Flags().BoolVar(&importIncAuto, "include-auto", false, "List auto-resolvable conflicts too")
	importPreviewCmd.Flags().BoolVar(&importDetailed, "detailed", false, "Include field-by-field differences")
	importRes.register(importExecuteCmd)

	importCmd.AddCommand(importPreviewCmd, importExecuteCmd)
	RootCmd.AddCommand(importCmd)
}

func readFilter() (imports.Filter, error) {
	data, err := readInput(importFilter)
	if err != nil {
		return imports.Filter{}, fmt.Errorf("failed to read filter: %w", err)
	}
	return imports.ParseFilter(data)
}

// openImportService wires the import service for one command.
func openImportService(cmd *cobra.Command) (*imports.Service, *zap.Logger, func(), error) {
	cfg, logg, err := setup()
	if err != nil {
		return nil, nil, nil, err
	}
	book, err := bookkeeping.Open(cfg.Bookkeeping, logg)
	if err != nil {
		logg.Warn("Bookkeeping unavailable; deletions and earlier resolutions are ignored", zap.Error(err))
		book = nil
	}
	svc, closeLocal, err := newImportService(cmd, cfg, logg, book)
	if err != nil {
		if book != nil {
			_ = book.Close()
		}
		return nil, nil, nil, err
	}
	cleanup := func() {
		_ = closeLocal()
		if book != nil {
			_ = book.Close()
		}
		_ = logg.Sync()
	}
	return svc, logg, cleanup, nil
}

func runImportPreview(cmd *cobra.Command, args []string) error {
	filter, err := readFilter()
	if err != nil {
		return err
	}
	svc, logg, cleanup, err := openImportService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Preview(cmd.Context(), imports.PreviewRequest{
		Source:                imports.ForeignSource{Path: importPath, Object: importObject},
		Filter:                filter,
		IncludeAutoResolvable: importIncAuto,
		DetailedDiff:          importDetailed,
	})
	if err != nil {
		return fmt.Errorf("import preview failed: %w", err)
	}
	if importJSON {
		return printJSON(res)
	}
	logPreview(logg, res)
	for _, c := range res.Conflicts {
		logg.Info("Conflict",
			zap.String("conflict_id", c.ConflictID),
			zap.String("type", string(c.Type)),
			zap.String("source_collection", c.SourceCollection),
			zap.String("target_collection", c.TargetCollection),
			zap.String("document_id", c.DocumentID))
	}
	return nil
}

func runImportExecute(cmd *cobra.Command, args []string) error {
	filter, err := readFilter()
	if err != nil {
		return err
	}
	payload, err := importRes.payload()
	if err != nil {
		return err
	}
	svc, logg, cleanup, err := openImportService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	src := imports.ForeignSource{Path: importPath, Object: importObject}
	if !confirmAction(fmt.Sprintf("Import %s%s into the local store?", src.Path, src.Object), importRes.yes) {
		logg.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	res, err := svc.Execute(cmd.Context(), imports.ExecuteRequest{
		Source:      src,
		Filter:      filter,
		Resolutions: payload,
	})
	if importJSON {
		if perr := printJSON(res); perr != nil {
			return perr
		}
	} else {
		logExecution(logg, res)
	}
	if err != nil {
		return fmt.Errorf("import execution failed: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	return nil
}
