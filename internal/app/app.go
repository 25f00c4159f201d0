// Package app assembles the ttdr components with fx.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/metalagman/ttdr/internal/config"
	internaldb "github.com/metalagman/ttdr/internal/db"
	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/metrics"
	"github.com/metalagman/ttdr/internal/research"
	"github.com/metalagman/ttdr/internal/run"
	"github.com/metalagman/ttdr/internal/search"
	"github.com/metalagman/ttdr/internal/vector"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// StateDir is the directory holding ttdr.db and run artifacts.
type StateDir string

// DBFile is the database file name inside the state directory.
const DBFile = "ttdr.db"

// App holds the started components. Fields that were not requested stay nil.
type App struct {
	DB      *sql.DB
	Store   *run.Store
	LLM     llm.Completer
	Search  search.Searcher
	Vector  *vector.Store
	Metrics *metrics.Metrics
	Runner  *run.Runner

	fx *fx.App
}

// New starts every component needed for research runs.
func New(ctx context.Context, cfg config.Config, stateDir string, logger zerolog.Logger) (*App, error) {
	a := &App{}
	err := a.start(ctx, cfg, stateDir, logger,
		fx.Populate(&a.DB, &a.Store, &a.LLM, &a.Search, &a.Vector, &a.Metrics, &a.Runner),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewStorage starts only the run database. It does not touch the
// completion, search, or vector providers.
func NewStorage(ctx context.Context, stateDir string, logger zerolog.Logger) (*App, error) {
	a := &App{}
	if err := a.start(ctx, config.Config{}, stateDir, logger, fx.Populate(&a.DB, &a.Store)); err != nil {
		return nil, err
	}
	return a, nil
}

// NewVector starts only the vector store, for ingestion.
func NewVector(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{}
	if err := a.start(ctx, cfg, "", logger, fx.Populate(&a.Vector)); err != nil {
		return nil, err
	}
	if a.Vector == nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("vector store is disabled (set vector.enabled)")
	}
	return a, nil
}

func (a *App) start(ctx context.Context, cfg config.Config, stateDir string, logger zerolog.Logger, populate fx.Option) error {
	a.fx = fx.New(
		fx.NopLogger,
		fx.Supply(cfg, StateDir(stateDir), logger),
		fx.Provide(
			newDB,
			run.NewStore,
			metrics.New,
			newCompleter,
			newSearcher,
			newVectorStore,
			newRunner,
		),
		populate,
	)
	if err := a.fx.Err(); err != nil {
		return fmt.Errorf("assemble app: %w", err)
	}
	if err := a.fx.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	return nil
}

// Close stops the components in reverse start order.
func (a *App) Close(ctx context.Context) error {
	if a == nil || a.fx == nil {
		return nil
	}
	return a.fx.Stop(ctx)
}

func newDB(lc fx.Lifecycle, dir StateDir, logger zerolog.Logger) (*sql.DB, error) {
	db, err := internaldb.Open(filepath.Join(string(dir), DBFile))
	if err != nil {
		return nil, err
	}
	if v, err := internaldb.SchemaVersion(db); err == nil {
		logger.Debug().Str("component", "db").Int64("schema_version", v).Msg("run database ready")
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return db.Close() },
	})
	return db, nil
}

func newCompleter(cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) (llm.Completer, error) {
	c, err := llm.New(context.Background(), cfg.LLM, logger.With().Str("component", "llm").Logger())
	if err != nil {
		return nil, err
	}
	return m.Instrument(c), nil
}

func newSearcher(cfg config.Config) (search.Searcher, error) {
	return search.New(cfg.Search)
}

// newVectorStore returns a nil store when the vector store is disabled.
func newVectorStore(lc fx.Lifecycle, cfg config.Config, logger zerolog.Logger) (*vector.Store, error) {
	if !cfg.Vector.Enabled {
		return nil, nil
	}
	s, err := vector.NewStore(cfg.Vector, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.EnsureClass(ctx); err != nil {
				logger.Warn().Err(err).Msg("vector store unavailable at startup")
			}
			return nil
		},
	})
	return s, nil
}

func newRunner(
	dir StateDir,
	cfg config.Config,
	db *sql.DB,
	completer llm.Completer,
	searcher search.Searcher,
	store *vector.Store,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*run.Runner, error) {
	deps := run.Deps{
		DB:        db,
		LLM:       completer,
		Web:       searcher,
		Observers: []research.Observer{m},
		Logger:    logger.With().Str("component", "run").Logger(),
	}
	if store != nil {
		deps.Vector = store
	}
	return run.NewRunner(string(dir), cfg, deps)
}
