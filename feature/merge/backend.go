package merge

import (
	"fmt"

	"kb-bridge/core/config"
	"kb-bridge/core/conflict"
	"kb-bridge/core/database"
	"kb-bridge/feature/merge/dolt"
	"kb-bridge/feature/merge/gitstore"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Backends selectable with vcs.backend.
const (
	BackendDolt = "dolt"
	BackendGit  = "git"
)

// StoreHandle is an open versioned store and the resources behind it.
type StoreHandle struct {
	Store conflict.VersionedStore
	// DB is the Dolt connection; nil for the git backend.
	DB    *gorm.DB
	close func() error
}

// Close releases the store's connection, if it holds one.
func (h StoreHandle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// OpenStore opens the versioned store named by the configuration.
func OpenStore(cfg *config.Config, logger *zap.Logger) (StoreHandle, error) {
	contentFields := cfg.Engine.ContentFields
	switch cfg.VCS.Backend {
	case BackendDolt, "":
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return StoreHandle{}, fmt.Errorf("connect to dolt: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return StoreHandle{}, err
		}
		return StoreHandle{
			Store: dolt.New(db, cfg.Database.Name, contentFields, logger),
			DB:    db,
			close: sqlDB.Close,
		}, nil
	case BackendGit:
		s, err := gitstore.Open(cfg.VCS.GitPath, gitstore.Options{
			ContentFields: contentFields,
			AuthorName:    cfg.VCS.AuthorName,
			AuthorEmail:   cfg.VCS.AuthorEmail,
			Logger:        logger,
		})
		if err != nil {
			return StoreHandle{}, err
		}
		return StoreHandle{Store: s}, nil
	default:
		return StoreHandle{}, fmt.Errorf("unknown vcs backend %q", cfg.VCS.Backend)
	}
}
