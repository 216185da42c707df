// Package app wires the configured components into one graph shared by the
// gateway and the command line.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ericksa/clauseguard/internal/analyzer"
	"github.com/ericksa/clauseguard/internal/archive"
	"github.com/ericksa/clauseguard/internal/audit"
	"github.com/ericksa/clauseguard/internal/config"
	"github.com/ericksa/clauseguard/internal/llm"
	"github.com/ericksa/clauseguard/internal/logger"
	"github.com/ericksa/clauseguard/internal/retrieval"
	"github.com/ericksa/clauseguard/pkg/mcp"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	LLM      *llm.Client
	Analyzer *analyzer.Analyzer
	Tools    *mcp.Handler

	// Retriever is nil when retrieval is disabled or the index is unusable.
	Retriever *retrieval.Retriever

	// Auditor is nil when the journal is disabled.
	Auditor *audit.Auditor
	Archive archive.Archiver
}

// Build constructs every component from cfg. An unusable reference index is
// not an error: the analyzer runs without reference context.
func Build(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, error) {
	l = logger.OrNop(l)
	a := &App{Config: cfg, Logger: l}

	client, err := llm.New(cfg.LLM, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	a.LLM = client

	if cfg.Retrieval.Enabled {
		if err := a.openRetriever(); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		l.Info("retrieval disabled")
	}

	// Only assign when present so the interfaces stay nil rather than
	// holding a nil *Retriever.
	var (
		searcher analyzer.ClauseSearcher
		comparer mcp.Comparer
	)
	if a.Retriever != nil {
		searcher = a.Retriever
		comparer = a.Retriever
	}

	a.Analyzer = analyzer.New(client, searcher,
		analyzer.WithConcurrency(cfg.Analyzer.Concurrency),
		analyzer.WithLogger(l),
	)

	if cfg.Audit.Enabled {
		auditor, err := audit.Open(ctx, cfg.Audit.Driver, cfg.Audit.DSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open audit journal: %w", err)
		}
		a.Auditor = auditor
	}

	arc, err := archive.New(cfg.Archive)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	if m, ok := arc.(*archive.MinIOArchive); ok {
		if err := m.EnsureBucket(ctx); err != nil {
			l.Warn("report archive bucket unavailable", zap.String("bucket", cfg.Archive.Bucket), zap.Error(err))
		}
	}
	a.Archive = arc

	a.Tools = mcp.NewHandler(a.Analyzer, mcp.Options{
		Comparer:     comparer,
		Auditor:      a.Auditor,
		Archive:      a.Archive,
		Logger:       l,
		UseRetrieval: cfg.Analyzer.UseRetrieval,
		MaxBatch:     cfg.Analyzer.MaxBatch,
		TopK:         cfg.Retrieval.TopK,
	})
	return a, nil
}

func (a *App) openRetriever() error {
	embedder, err := retrieval.NewEmbedder(a.Config.Retrieval)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	r, err := retrieval.Open(a.Config.Retrieval, embedder, a.Logger)
	switch {
	case err == nil:
		a.Retriever = r
		a.Logger.Info("reference index opened", zap.String("path", a.Config.Retrieval.IndexPath))
	case errors.Is(err, retrieval.ErrUnavailable):
		a.Logger.Warn("reference index unavailable, analyzing without reference context", zap.Error(err))
	default:
		return fmt.Errorf("failed to open reference index: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.Retriever != nil {
		errs = append(errs, a.Retriever.Close())
	}
	errs = append(errs, a.Auditor.Close())
	if a.LLM != nil {
		a.LLM.Close()
	}
	return errors.Join(errs...)
}
