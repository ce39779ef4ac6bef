package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/feedback-reviews/internal/config"
	"github.com/jonathan/feedback-reviews/internal/db"
	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/memstore"
	"github.com/jonathan/feedback-reviews/internal/notify"
	"github.com/jonathan/feedback-reviews/internal/progress"
	"github.com/jonathan/feedback-reviews/internal/workflow"
	"google.golang.org/api/option"
)

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *db.DB // nil with the memory store
	store   feedback.Store
	source  notify.Source
	commLog notify.CommunicationLog
	drafts  progress.Store
	graphs  *workflow.Graphs
	closers []func()
}

// newApp connects storage. With memory set, reviews live in process and
// templates are seeded from templatesFile or the built-in default.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, memory bool, templatesFile string) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if memory {
		store := memstore.New()
		templates, err := loadTemplates(templatesFile)
		if err != nil {
			return nil, err
		}
		for _, t := range templates {
			store.PutTemplate(t)
			logger.Info("template loaded", "name", t.Name, "id", t.ID)
		}
		a.store, a.source, a.commLog = store, store, store
	} else {
		if cfg.Database.URL == "" {
			return nil, errors.New("database.url is required unless --memory is set")
		}
		database, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.db = database
		a.closers = append(a.closers, database.Close)
		a.store, a.source, a.commLog = database, database, database
	}

	switch cfg.Progress.Driver {
	case "sqlite":
		drafts, err := progress.OpenSQLite(cfg.Progress.Path, 0)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.drafts = drafts
		a.closers = append(a.closers, func() { _ = drafts.Close() })
	default:
		a.drafts = progress.NewMemoryStore(0)
	}

	graphs, err := loadGraphs(ctx, cfg.Transitions, a.db)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.graphs = graphs
	return a, nil
}

// Close releases storage in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) service() *feedback.Service {
	return feedback.NewService(a.store, a.drafts, a.graphs,
		feedback.WithLogger(a.logger),
		feedback.WithEnvironment(a.cfg.Progress.Environment))
}

func (a *app) scheduler(ctx context.Context) (*notify.Scheduler, error) {
	weekday, err := a.cfg.Scheduler.Weekday()
	if err != nil {
		return nil, err
	}
	loc, err := a.cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	channels, err := buildChannels(ctx, a.cfg.Notify, a.logger)
	if err != nil {
		return nil, err
	}
	return notify.NewScheduler(a.source, a.commLog, channels, notify.Config{
		DueSoonDays:    a.cfg.Scheduler.DueSoonDays,
		OverdueWeekday: weekday,
		Location:       loc,
		Concurrency:    a.cfg.Scheduler.Concurrency,
	}, notify.WithSchedulerLogger(a.logger)), nil
}

func loadGraphs(ctx context.Context, cfg config.TransitionsConfig, database *db.DB) (*workflow.Graphs, error) {
	switch cfg.Source {
	case "file":
		return workflow.LoadGraphsFile(cfg.File)
	case "db":
		if database == nil {
			return nil, errors.New("transitions.source db requires a database")
		}
		return database.LoadTransitionGraphs(ctx)
	default:
		return workflow.DefaultGraphs()
	}
}

// buildChannels returns one email and one calendar channel.
func buildChannels(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) ([]notify.Channel, error) {
	renderer, err := notify.NewRenderer(cfg.InboxURL)
	if err != nil {
		return nil, err
	}
	if cfg.Driver != "google" {
		return []notify.Channel{
			notify.NewLogChannel(notify.TypeReviewerEmail, logger, renderer),
			notify.NewLogChannel(notify.TypeCalendarEvent, logger, nil),
		}, nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	mail, err := notify.NewGmailChannel(ctx, cfg.From, renderer, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up email channel: %w", err)
	}
	cal, err := notify.NewCalendarChannel(ctx, cfg.CalendarID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up calendar channel: %w", err)
	}
	return []notify.Channel{mail, cal}, nil
}
