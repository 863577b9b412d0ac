package cmd

import (
	"fmt"

	"kb-bridge/core/bookkeeping"
	"kb-bridge/feature/merge"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mergeSource   string
	mergeTarget   string
	mergeIncAuto  bool
	mergeDetailed bool
	mergeMessage  string
	mergeJSON     bool
	mergeRes      resolutionFlags
)

// mergeCmd is the parent command for branch merges.
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Detect and resolve conflicts when merging branches",
	Long: `Analyze a merge of --source into --target on the configured versioned store
(Dolt or git) and execute it with the chosen resolutions.`,
}

var mergePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview the conflicts of a merge",
	RunE:  runMergePreview,
}

var mergeExecuteCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute a merge with resolutions",
	Long: `Execute a merge. Resolutions may be given as a file in any accepted shape:

  [{"conflict_id": "conf_...", "resolution_type": "keep_ours"}]
  {"resolutions": [...], "default_strategy": "keep_theirs"}
  {"conf_...": "field_merge", "default_strategy": "keep_ours"}

Nothing is merged when any conflict cannot be resolved.

Examples:
  merge execute --source feature --target main --default-strategy keep_theirs --yes
  merge execute --source feature --target main --resolutions resolutions.yaml`,
	RunE: runMergeExecute,
}

func init() {
	for _, c := range []*cobra.Command{mergePreviewCmd, mergeExecuteCmd} {
		c.Flags().StringVar(&mergeSource, "source", "", "Branch being merged (theirs)")
		c.Flags().StringVar(&mergeTarget, "target", "", "Branch merged into (ours)")
		c.Flags().BoolVar(&mergeJSON, "json", false, "Print the full result as JSON")
		_ = c.MarkFlagRequired("source")
		_ = c.MarkFlagRequired("target")
	}
	mergePreviewCmd.Flags().BoolVar(&mergeIncAuto, "include-auto", false, "List auto-resolvable conflicts too")
	mergePreviewCmd.Flags().BoolVar(&mergeDetailed, "detailed", false, "Include field-by-field differences")
	mergeExecuteCmd.Flags().StringVar(&mergeMessage, "message", "", "Merge commit message")
	mergeRes.register(mergeExecuteCmd)

	mergeCmd.AddCommand(mergePreviewCmd, mergeExecuteCmd)
	RootCmd.AddCommand(mergeCmd)
}

// openMergeService opens the versioned store and bookkeeping behind a merge service.
func openMergeService(cmd *cobra.Command) (*merge.Service, *zap.Logger, func(), error) {
	cfg, logg, err := setup()
	if err != nil {
		return nil, nil, nil, err
	}
	handle, err := merge.OpenStore(cfg, logg)
	if err != nil {
		return nil, nil, nil, err
	}
	var recorder merge.ResolutionRecorder
	book, err := bookkeeping.Open(cfg.Bookkeeping, logg)
	if err != nil {
		logg.Warn("Bookkeeping unavailable; resolutions will not be recorded", zap.Error(err))
	} else {
		recorder = book
	}
	svc := merge.NewService(newEngine(cfg, logg), handle.Store, recorder, cfg.VCS.Author(), logg)
	cleanup := func() {
		if book != nil {
			_ = book.Close()
		}
		_ = handle.Close()
		_ = logg.Sync()
	}
	return svc, logg, cleanup, nil
}

func runMergePreview(cmd *cobra.Command, args []string) error {
	svc, logg, cleanup, err := openMergeService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Preview(cmd.Context(), merge.PreviewRequest{
		SourceRef:             mergeSource,
		TargetRef:             mergeTarget,
		IncludeAutoResolvable: mergeIncAuto,
		DetailedDiff:          mergeDetailed,
	})
	if err != nil {
		return fmt.Errorf("merge preview failed: %w", err)
	}
	if mergeJSON {
		return printJSON(res)
	}
	logPreview(logg, res)
	for _, c := range res.Conflicts {
		logg.Info("Conflict",
			zap.String("conflict_id", c.ConflictID),
			zap.String("type", string(c.Type)),
			zap.String("table", c.Table),
			zap.String("document_id", c.DocumentID),
			zap.Bool("auto_resolvable", c.AutoResolvable))
	}
	return nil
}

func runMergeExecute(cmd *cobra.Command, args []string) error {
	payload, err := mergeRes.payload()
	if err != nil {
		return err
	}
	svc, logg, cleanup, err := openMergeService(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if !confirmAction(fmt.Sprintf("Merge %s into %s?", mergeSource, mergeTarget), mergeRes.yes) {
		logg.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	res, err := svc.Execute(cmd.Context(), merge.ExecuteRequest{
		SourceRef:   mergeSource,
		TargetRef:   mergeTarget,
		Message:     mergeMessage,
		Resolutions: payload,
	})
	if err != nil {
		return fmt.Errorf("merge execution failed: %w", err)
	}
	if mergeJSON {
		return printJSON(res)
	}
	logExecution(logg, res)
	if res.CommitRef != "" {
		logg.Info("Merge committed", zap.String("commit", res.CommitRef))
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	return nil
}
