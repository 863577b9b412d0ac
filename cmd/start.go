package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kb-bridge/core/bookkeeping"
	"kb-bridge/core/loader"
	"kb-bridge/core/logger"
	"kb-bridge/core/metrics"
	"kb-bridge/core/middleware/auth"
	"kb-bridge/core/middleware/rayid"
	"kb-bridge/core/storage"
	"kb-bridge/feature/imports"
	"kb-bridge/feature/imports/pgstore"
	"kb-bridge/feature/integrity"
	"kb-bridge/feature/merge"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "kb-bridge/docs/swagger"
)

// @title KB Bridge API
// @version 1.0
// @description Conflict detection and resolution for knowledge base merges and imports.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kb-bridge server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, logg, err := setup()
		if err != nil {
			log.Fatalf("Failed to start: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		engine := newEngine(cfg, logg)

		// 2. Bookkeeping (Optional)
		var book *bookkeeping.Store
		if b, err := bookkeeping.Open(cfg.Bookkeeping, logg); err != nil {
			logg.Warn("Bookkeeping unavailable", zap.Error(err))
		} else {
			book = b
			defer book.Close()
		}

		// 3. Versioned store (Optional)
		mgr := loader.NewManager()
		integrityOpts := integrity.Options{
			ExcludedTables: cfg.Engine.ExcludedTables,
			ContentFields:  cfg.Engine.ContentFields,
			Bucket:         cfg.Storage.Bucket,
			Prefix:         cfg.Storage.ForeignPrefix,
			Opener:         newOpener(cfg, logg),
			Logger:         logg,
		}
		if handle, err := merge.OpenStore(cfg, logg); err != nil {
			logg.Warn("Versioned store unavailable; merge is disabled", zap.Error(err))
		} else {
			defer handle.Close()
			integrityOpts.DB = handle.DB
			var recorder merge.ResolutionRecorder
			if book != nil {
				recorder = book
			}
			mgr.Register(merge.NewFeature(engine, handle.Store, recorder, cfg.VCS.Author(), logg))
		}

		// 4. Local vector store (Optional)
		var local imports.LocalStore
		if db, err := pgstore.Open(cfg.VectorStore.DSN); err != nil {
			logg.Warn("Vector store unavailable; import is disabled", zap.Error(err))
		} else {
			defer db.Close()
			store := pgstore.New(db, "pgvector", cfg.VectorStore.Dimension, logg)
			if err := store.EnsureSchema(context.Background()); err != nil {
				logg.Warn("Vector store schema could not be created; import is disabled", zap.Error(err))
			} else {
				local = store
			}
		}
		var bk imports.Bookkeeper
		if book != nil {
			bk = book
		}
		mgr.Register(imports.NewFeature(engine, integrityOpts.Opener, local, bk, cfg.Engine.Parallelism, logg))

		// 5. Object storage (Optional)
		if client, err := storage.NewClient(cfg.Storage); err != nil {
			logg.Warn("Object storage unavailable", zap.Error(err))
		} else {
			integrityOpts.Client = client
		}
		mgr.Register(integrity.NewFeature(integrityOpts))

		// 6. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
			BodyLimit:             cfg.Server.BodyLimit(),
		})

		// RayID must be first to trace everything
		app.Use(rayid.New())
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})
		app.Use(metrics.Middleware())

		// Public routes
		app.Get("/metrics", metrics.Handler())
		app.Get("/swagger/*", swagger.HandlerDefault)

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 7. Load Features
		loaded, err := mgr.LoadAll(app)
		if err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}
		logg.Info("Features loaded", zap.Strings("features", loaded))

		// 8. Start Server
		go func() {
			logg.Info("Starting server", zap.String("address", cfg.Server.Address()))
			if err := app.Listen(cfg.Server.Address()); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 9. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
			logg.Error("Shutdown failed", zap.Error(err))
		}
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
