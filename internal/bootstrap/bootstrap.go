// Package bootstrap wires the services shared by the server and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"

	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/queue"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/service"
)

type App struct {
	Config    *config.Config
	Log       logging.Logger
	Posts     repository.PostRepository
	History   repository.PostingHistoryRepository
	Backend   queue.Backend
	Lifecycle service.LifecycleService
	Publisher service.PublishService

	closers []io.Closer
}

// New builds every service from cfg. The trigger backend is probed here, once,
// and kept for the life of the process.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Log: log}

	app.Posts = repository.NewPostRepository(cfg.PostsFile, loc)

	app.History, err = app.openHistory(ctx)
	if err != nil {
		return nil, err
	}

	app.Backend = queue.Probe(ctx, queue.ProbeConfig{RedisURI: cfg.RedisURI, QueueFile: cfg.QueueFile}, log)
	if c, ok := app.Backend.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	scheduler := service.NewSchedulerService(loc, cfg.PublishHour, app.Backend, log, nil)
	app.Lifecycle = service.NewLifecycleService(app.Posts, service.NewPassthroughGenerator(), scheduler, log, nil)

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	retry := service.DefaultRetryConfig()

	uploader, err := service.NewUploader(ctx, cfg.R2)
	if err != nil {
		app.Close()
		return nil, err
	}
	relay := service.NewRelayService(uploader, client, retry, log)

	if cfg.X.BearerToken == "" {
		log.Warn("X_BEARER_TOKEN is not set, publishing to x will fail")
	}
	if cfg.Instagram.AccessToken == "" || cfg.Instagram.AccountID == "" {
		log.Warn("INSTAGRAM_ACCOUNT_ID or INSTAGRAM_ACCESS_TOKEN is not set, publishing to instagram will fail")
	}
	publishers := []service.PlatformPublisher{
		service.NewTwitterService(cfg.X, client, retry, log),
		service.NewInstagramService(cfg.Instagram, client, retry, cfg.ProcessingWait, log),
	}

	app.Publisher = service.NewPublishService(
		app.Posts,
		app.History,
		relay,
		publishers,
		service.NewNotifier(cfg.Telegram, client, retry, log),
		service.PublishOptions{
			MaxRelayAttempts:   cfg.MaxRelayAttempts,
			MaxPublishAttempts: cfg.MaxPublishAttempts,
		},
		log,
		nil,
	)

	return app, nil
}

// openHistory connects the Postgres audit log when POSTGRES_URI is set.
func (a *App) openHistory(ctx context.Context) (repository.PostingHistoryRepository, error) {
	if a.Config.PostgresURI == "" {
		return repository.NewNopPostingHistoryRepository(), nil
	}

	db, err := sql.Open("postgres", a.Config.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	if err := repository.EnsurePostingHistorySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	a.closers = append(a.closers, db)
	a.Log.Info("posting history audit enabled")
	return repository.NewPostingHistoryRepository(db), nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
