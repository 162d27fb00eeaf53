package searchengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/index"
)

// Closer releases an engine's resources
type Closer func(ctx context.Context) error

// New builds the engine selected by configuration.
func New(ctx context.Context, cfg config.SearchConfig, logger *slog.Logger) (index.Engine, Closer, error) {
	switch cfg.Engine {
	case config.SearchEngineBleve, "":
		engine, err := NewBleveEngine(cfg.BlevePath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using bleve search engine", slog.String("path", cfg.BlevePath))
		return engine, func(context.Context) error { return engine.Close() }, nil
	case config.SearchEngineMongo:
		engine, err := NewMongoEngine(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using mongo search engine", slog.String("database", cfg.MongoDatabase))
		return engine, engine.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown search engine %q", cfg.Engine)
	}
}
