// The demo wires the blog post example against a real storage engine,
// chosen through the environment, and walks one post through its
// lifecycle: create, edit, commit, reload, archive.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventfold/entity-sourcing-go/entity"
	"github.com/eventfold/entity-sourcing-go/entity/memoryengine"
	"github.com/eventfold/entity-sourcing-go/entity/postgresengine"
	"github.com/eventfold/entity-sourcing-go/entity/promadapter"
	"github.com/eventfold/entity-sourcing-go/entity/sqliteengine"
	"github.com/eventfold/entity-sourcing-go/example/blogpost"
	"github.com/eventfold/entity-sourcing-go/example/config"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("demo failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	adapter, err := openAdapter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	postType, err := blogpost.NewType()
	if err != nil {
		return err
	}

	metrics := promadapter.NewCollector(prometheus.DefaultRegisterer, promadapter.WithNamespace("blog"))

	repository, err := entity.NewRepository(
		postType,
		adapter,
		entity.WithLogger[blogpost.State](logger),
		entity.WithMetrics[blogpost.State](metrics),
	)
	if err != nil {
		return err
	}

	post, err := postType.Create("", blogpost.Created{
		Title:   "Event sourcing in Go",
		Content: "Fold events, get state.",
		Author:  "demo",
		Tags:    []string{},
	})
	if err != nil {
		return err
	}

	postID := post.EntityID()
	logger.Info("created post", "entity_id", postID)

	if err = blogpost.UpdateTitle(post, "Event sourcing in Go, revisited"); err != nil {
		return err
	}
	if err = blogpost.AddTag(post, "go"); err != nil {
		return err
	}

	if err = entity.RetryCommit(ctx, func(ctx context.Context) error {
		return repository.Commit(ctx, post)
	}); err != nil {
		return err
	}

	found, err := repository.FindOne(ctx, postID)
	if err != nil {
		return err
	}

	state, err := found.State()
	if err != nil {
		return err
	}

	fmt.Printf("reloaded post %s: %q by %s, tags %v\n", postID, state.Title, state.Author, state.Tags)

	if err = blogpost.Archive(found); err != nil {
		return err
	}

	if err = repository.Commit(ctx, found); err != nil {
		return err
	}

	logger.Info("archived post", "entity_id", postID)

	return nil
}

// newLogger builds a slog logger, which satisfies entity.Logger directly.
func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

func openAdapter(ctx context.Context, cfg config.Config, logger *slog.Logger) (entity.Adapter, error) {
	switch cfg.StorageEngine {
	case config.EnginePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		adapter, err := postgresengine.NewAdapterFromPGXPool(pool, postgresengine.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		if err = adapter.Migrate(ctx); err != nil {
			return nil, err
		}

		return adapter, nil

	case config.EngineSQLite:
		db, err := sqliteengine.Open(cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}

		adapter, err := sqliteengine.NewAdapter(db, sqliteengine.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		if err = adapter.Migrate(ctx); err != nil {
			return nil, err
		}

		return adapter, nil

	default:
		return memoryengine.NewAdapter(), nil
	}
}
