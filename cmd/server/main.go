package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/api"
	"github.com/maheshrc27/postpilot/internal/bootstrap"
	job "github.com/maheshrc27/postpilot/internal/jobs"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser, err := logging.New("postpilot-server", cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to wire services")
	}
	defer closeApp(app)

	// cron pulse: the only trigger source for the file queue, a safety net for asynq
	sweep := job.NewPublishSweepJob(app.Publisher, app.Posts, app.Backend, log)
	c, err := job.Schedule(cfg.CronSpec, sweep)
	if err != nil {
		log.WithError(err).WithField("cron_spec", cfg.CronSpec).Fatal("Invalid cron spec")
	}
	c.Start()
	defer c.Stop()

	var asynqServer *asynq.Server
	if app.Backend.Name() == queue.BackendAsynq {
		asynqServer = asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, asynq.Config{
			Concurrency: 4,
			Logger:      log,
		})
		mux := queue.NewWorker(app.Publisher, log).Mux()

		go func() {
			log.Info("Starting the Asynq server...")
			if err := asynqServer.Run(mux); err != nil {
				log.WithError(err).Fatal("Could not start Asynq server")
			}
		}()
	}

	server := api.NewApp(api.Deps{
		Lifecycle: app.Lifecycle,
		Publisher: app.Publisher,
		History:   app.History,
		APIKey:    cfg.APIKey,
		SecretKey: cfg.SecretKey,
		Log:       log,
	})
	if cfg.APIKey == "" && cfg.SecretKey == "" {
		log.Warn("API_KEY and SECRET_KEY are empty, every /api request will be refused")
	}

	go func() {
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()
	log.WithField("port", cfg.Port).Info("Server is running")

	gracefulShutdown(server, asynqServer, log)
}

func closeApp(app *bootstrap.App) {
	if err := app.Close(); err != nil {
		app.Log.WithError(err).Error("Failed to close resources")
	}
}

func gracefulShutdown(server *fiber.App, asynqServer *asynq.Server, log logging.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down server...")

	if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.WithError(err).Error("Failed to shut down server")
	}
	if asynqServer != nil {
		asynqServer.Shutdown()
	}

	log.Info("Server shutdown complete.")
}
