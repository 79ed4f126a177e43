package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/daverage/strata/internal/analytics"
	"github.com/daverage/strata/internal/archive"
	"github.com/daverage/strata/internal/config"
	"github.com/daverage/strata/internal/embedding"
	"github.com/daverage/strata/internal/hydration"
	"github.com/daverage/strata/internal/inject"
	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
	"github.com/daverage/strata/internal/semantic"
)

// CoreModule holds the process-level components.
type CoreModule struct {
	Config  *config.Config
	Logger  *zap.Logger
	Archive *archive.DB          // nil when the archive is disabled
	Journal *archive.JournalSink // nil when the archive is disabled
}

// EmbeddingModule holds the embedding provider chain. Provider is nil when
// configured to "none"; Cache is the caching wrapper when one is in place.
type EmbeddingModule struct {
	Provider embedding.Provider
	Cache    *embedding.Cache
}

// App wires one agent's engines and their collaborators.
type App struct {
	Core      CoreModule
	Embedding EmbeddingModule

	Memory    *memory.Engine
	Recall    *recall.Engine
	Semantic  *semantic.Engine
	Assembler *hydration.Assembler
	Injector  *inject.Injector
	Stats     *analytics.Reporter

	Ctx    context.Context
	Cancel context.CancelFunc
}
