package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/mkoster/subtrack/internal/config"
	"github.com/mkoster/subtrack/internal/store"
	"github.com/mkoster/subtrack/internal/tracker"
	"github.com/mkoster/subtrack/pkg/feed"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config, schema *store.Schema) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.SQLite.Path, schema)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewSheets(ctx, schema, store.SheetsOptions{
			SpreadsheetID:   cfg.Store.Sheets.SpreadsheetID,
			Worksheet:       cfg.Store.Sheets.Worksheet,
			CredentialsFile: cfg.Store.Sheets.CredentialsFile,
			CredentialsJSON: cfg.Store.Sheets.CredentialsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return st, nil
	}
}

func buildTracker(ctx context.Context, cfg *config.Config) (*tracker.Tracker, store.Store, error) {
	schema := store.NewSchema(cfg.Tracking.TrackDays)
	st, err := openStore(ctx, cfg, schema)
	if err != nil {
		return nil, nil, err
	}

	loc, err := cfg.Tracking.Location()
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	client := feed.NewReddit(cfg.Reddit.ClientID, cfg.Reddit.ClientSecret, cfg.Reddit.UserAgent)
	tr := tracker.New(st, client, schema, tracker.Options{
		Subreddit:    cfg.Subreddit,
		FetchLimit:   cfg.Tracking.FetchLimit,
		StoreBody:    cfg.Tracking.StoreBody,
		BodyMaxChars: cfg.Tracking.BodyMaxChars,
		Location:     loc,
		Logger:       newLogger(),
	})
	return tr, st, nil
}

func runInitSheet() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	schema := store.NewSchema(cfg.Tracking.TrackDays)
	st, err := openStore(ctx, cfg, schema)
	if err != nil {
		return err
	}
	defer st.Close()

	created, err := st.EnsureHeader(ctx)
	if err != nil {
		return err
	}
	if created {
		fmt.Println("[init-sheet] Header created.")
	} else {
		fmt.Println("[init-sheet] Header ensured.")
	}
	return nil
}

func runPoll() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	tr, st, err := buildTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	added, err := tr.Poll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("[poll] Added %d new post(s).\n", added)
	return nil
}

func runDaily() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	tr, st, err := buildTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := tr.Observe(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("[daily] Updated %d post(s); marked done %d post(s).\n", res.Updated, res.Done)
	return nil
}
