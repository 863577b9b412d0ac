package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"kb-bridge/core/bookkeeping"
	"kb-bridge/core/config"
	"kb-bridge/core/conflict"
	"kb-bridge/core/logger"
	"kb-bridge/core/storage"
	"kb-bridge/feature/imports"
	"kb-bridge/feature/imports/chroma"
	"kb-bridge/feature/imports/pgstore"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// setup loads configuration and builds the logger every command needs.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logg, nil
}

func newEngine(cfg *config.Config, logg *zap.Logger) *conflict.Engine {
	return conflict.NewEngine(cfg.Engine.EngineConfig(logg))
}

// newOpener builds the foreign store opener. Object storage is optional; the
// minio client connects lazily, so a bad endpoint only fails object fetches.
func newOpener(cfg *config.Config, logg *zap.Logger) *chroma.Opener {
	var fetcher *chroma.Fetcher
	if client, err := storage.NewClient(cfg.Storage); err != nil {
		logg.Warn("Object storage unavailable; foreign_object sources are disabled", zap.Error(err))
	} else {
		fetcher = chroma.NewFetcher(client, cfg.Storage.Bucket, cfg.Storage.ForeignPrefix, logg)
	}
	return chroma.NewOpener(fetcher, logg)
}

// openLocalStore connects to the pgvector store and ensures its schema.
func openLocalStore(cmd *cobra.Command, cfg *config.Config, logg *zap.Logger) (*pgstore.Store, func() error, error) {
	db, err := pgstore.Open(cfg.VectorStore.DSN)
	if err != nil {
		return nil, nil, err
	}
	store := pgstore.New(db, "pgvector", cfg.VectorStore.Dimension, logg)
	if err := store.EnsureSchema(cmd.Context()); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db.Close, nil
}

// newImportService wires the import service with its collaborators.
func newImportService(cmd *cobra.Command, cfg *config.Config, logg *zap.Logger, book *bookkeeping.Store) (*imports.Service, func() error, error) {
	local, closeLocal, err := openLocalStore(cmd, cfg, logg)
	if err != nil {
		return nil, nil, err
	}
	var bk imports.Bookkeeper
	if book != nil {
		bk = book
	}
	svc := imports.NewService(newEngine(cfg, logg), newOpener(cfg, logg), local, bk, cfg.Engine.Parallelism, logg)
	return svc, closeLocal, nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// confirmAction prompts the user for confirmation unless yes is set.
func confirmAction(prompt string, yes bool) bool {
	if yes {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n%s Type 'yes' to confirm: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}

// resolutionFlags are shared by both execute commands.
type resolutionFlags struct {
	file        string
	strategy    string
	autoResolve bool
	yes         bool
}

func (f *resolutionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "resolutions", "", "Resolutions file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&f.strategy, "default-strategy", "", "Strategy for conflicts without an explicit resolution")
	cmd.Flags().BoolVar(&f.autoResolve, "auto-resolve-remaining", false, "Auto-resolve conflicts that allow it")
	cmd.Flags().BoolVar(&f.yes, "yes", false, "Auto-confirm (non-interactive)")
}

// payload reads the resolutions file; flags override the file's options.
func (f *resolutionFlags) payload() (conflict.ResolutionPayload, error) {
	data, err := readInput(f.file)
	if err != nil {
		return conflict.ResolutionPayload{}, fmt.Errorf("failed to read resolutions: %w", err)
	}
	p, err := conflict.ParseResolutionPayload(data)
	if err != nil {
		return p, err
	}
	if f.strategy != "" {
		rt, err := conflict.ParseResolutionType(f.strategy)
		if err != nil {
			return p, err
		}
		p.DefaultStrategy = rt
	}
	if f.autoResolve {
		p.AutoResolveRemaining = true
	}
	return p, nil
}

// logPreview prints a short summary of a preview.
func logPreview(l *zap.Logger, res conflict.PreviewResult) {
	l.Info("Preview",
		zap.Bool("success", res.Success),
		zap.Bool("verified", res.Verified),
		zap.Int("conflicts", res.TotalConflictsDetected),
		zap.Int("auto_resolvable", res.AutoResolvableCount),
		zap.Int("manual", res.ManualCount),
		zap.Int("adds", res.ChangesPreview.Adds),
		zap.Int("updates", res.ChangesPreview.Updates),
		zap.Int("deletes", res.ChangesPreview.Deletes),
		zap.String("recommended_action", res.RecommendedAction),
	)
	for _, w := range res.Warnings {
		l.Warn("Analysis warning", zap.String("warning", w))
	}
}

func logExecution(l *zap.Logger, res conflict.ExecutionResult) {
	l.Info("Execution",
		zap.String("execution_id", res.ExecutionID),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
		zap.Int("imported", res.DocumentsImported),
		zap.Int("updated", res.DocumentsUpdated),
		zap.Int("deleted", res.DocumentsDeleted),
		zap.Int("skipped", res.DocumentsSkipped),
		zap.Int("resolved", res.ConflictsResolved),
		zap.Int("failed", res.ConflictsFailed),
	)
}
