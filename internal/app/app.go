package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/daverage/strata/internal/analytics"
	"github.com/daverage/strata/internal/archive"
	"github.com/daverage/strata/internal/config"
	"github.com/daverage/strata/internal/embedding"
	"github.com/daverage/strata/internal/events"
	"github.com/daverage/strata/internal/hydration"
	"github.com/daverage/strata/internal/inject"
	"github.com/daverage/strata/internal/logging"
	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
	"github.com/daverage/strata/internal/semantic"
)

// NewApp loads configuration and wires every component. The engine starts
// from the agent's latest snapshot when the archive is enabled, so memory
// carries across invocations.
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	provider, cache, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}

	var (
		db      *archive.DB
		journal *archive.JournalSink
	)
	if cfg.ArchiveEnabled {
		db, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			logger.Error("Failed to open archive", zap.Error(err))
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		journal = archive.NewJournalSink(db, logger)
	}

	notifier := events.Fanout{events.NewZapNotifier(logger)}
	if journal != nil {
		notifier = append(notifier, journal)
	}

	mem, err := memory.NewEngine(cfg.EngineOptions(), provider, notifier, logger)
	if err != nil {
		return nil, err
	}

	rec := recall.NewEngine(mem)
	sem := semantic.NewEngine(mem, provider, cfg.EmbeddingTimeout(), logger)
	asm := hydration.NewAssembler(mem, rec, sem, cfg.ContextFactLimit, logger)

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Core: CoreModule{
			Config:  cfg,
			Logger:  logger,
			Archive: db,
			Journal: journal,
		},
		Embedding: EmbeddingModule{
			Provider: provider,
			Cache:    cache,
		},
		Memory:    mem,
		Recall:    rec,
		Semantic:  sem,
		Assembler: asm,
		Injector:  inject.NewInjector(asm, cfg.ContextMaxTokens),
		Stats:     analytics.NewReporter(mem),
		Ctx:       ctx,
		Cancel:    cancel,
	}

	if err := a.restoreState(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildProvider constructs the configured embedding provider, wrapped in the
// content-keyed cache. Provider "none" yields nil, which keeps search and
// merge on the lexical path.
func buildProvider(cfg *config.Config) (embedding.Provider, *embedding.Cache, error) {
	var inner embedding.Provider
	switch cfg.EmbeddingProvider {
	case "none":
		return nil, nil, nil
	case "hash":
		inner = embedding.NewHashProvider(cfg.EmbeddingDimensions)
	case "openai":
		var err error
		inner, err = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:     cfg.EmbeddingAPIKey,
			Model:      cfg.EmbeddingModel,
			BaseURL:    cfg.EmbeddingBaseURL,
			Dimensions: cfg.EmbeddingDimensions,
		})
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider: %q", cfg.EmbeddingProvider)
	}

	cache, err := embedding.NewCache(inner, cfg.EmbeddingCacheBytes)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache, nil
}

// restoreState imports the agent's latest snapshot when one exists.
func (a *App) restoreState() error {
	if a.Core.Archive == nil {
		return nil
	}

	items, info, err := a.Core.Archive.LoadLatestSnapshot(a.Core.Config.AgentID)
	if err != nil {
		if errors.Is(err, archive.ErrNoSnapshot) {
			return nil
		}
		return fmt.Errorf("restore snapshot: %w", err)
	}

	kept, err := a.Memory.Import(items)
	if err != nil {
		return fmt.Errorf("restore snapshot %d: %w", info.ID, err)
	}
	a.Core.Logger.Info("restored memory snapshot",
		zap.Int64("snapshot", info.ID),
		zap.Int("items", kept),
		zap.String("agent", a.Core.Config.AgentID),
	)
	return nil
}

// SaveState snapshots the engine's full contents for the configured agent.
// Mutating commands call this before exiting.
func (a *App) SaveState() error {
	if a.Core.Archive == nil {
		return nil
	}

	items := a.Memory.Export()
	id, err := a.Core.Archive.SaveSnapshot(a.Core.Config.AgentID, items)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	a.Core.Logger.Debug("saved memory snapshot",
		zap.Int64("snapshot", id),
		zap.Int("items", len(items)),
	)
	return nil
}

// Close gracefully shuts down the application resources.
func (a *App) Close() {
	if a.Cancel != nil {
		a.Cancel()
	}

	if a.Core.Journal != nil {
		a.Core.Journal.Close()
	}
	if a.Core.Archive != nil {
		if err := a.Core.Archive.Close(); err != nil {
			a.Core.Logger.Error("Failed to close archive", zap.Error(err))
		}
	}
	if a.Embedding.Cache != nil {
		a.Embedding.Cache.Close()
	}
	if a.Core.Logger != nil {
		if err := a.Core.Logger.Sync(); err != nil {
			// Sync on stderr fails on some platforms; only surface the rest.
			if !strings.Contains(err.Error(), "sync /dev/stderr: invalid argument") &&
				!strings.Contains(err.Error(), "sync /dev/stderr: inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
			}
		}
	}
}

// ContextWithLogger returns a new context carrying the application's logger.
func (a *App) ContextWithLogger(ctx context.Context) context.Context {
	return logging.ContextWithLogger(ctx, a.Core.Logger)
}

// LoggerFromContext retrieves the logger from the context, or returns the
// default app logger.
func (a *App) LoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := logging.LoggerFromContext(ctx); ok {
		return logger
	}
	return a.Core.Logger
}
