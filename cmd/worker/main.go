package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/filesmanager/internal/bootstrap"
	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/queue"
	"github.com/maneesh/filesmanager/internal/thumbnail"
	"github.com/maneesh/filesmanager/internal/tracing"
	"github.com/maneesh/filesmanager/internal/welcome"
	"github.com/sirupsen/logrus"
)

func main() {
	drain := flag.Bool("drain", false, "process pending jobs once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.New("files-manager-worker", "info", "json").WithError(err).Fatal("failed to load config")
	}

	log := logging.New(cfg.ServiceName+"-worker", cfg.LogLevel, cfg.LogFormat)

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName+"-worker", cfg.JaegerEndpoint, cfg.TracingEnabled, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.WithError(err).Error("error shutting down tracer")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open stores")
	}
	defer stores.Close()

	registry := queue.NewRegistry()
	queue.Register[models.ThumbnailJob](registry, thumbnail.NewTask(stores.TiDB.Files(), stores.Blobs, log))
	queue.Register[models.WelcomeJob](registry, welcome.NewTask(stores.TiDB.Users(), log))

	client := queue.NewClient(stores.Redis.Client(), cfg.JobMaxAttempts)
	worker := queue.NewWorker(client, registry, log, queue.Options{
		Concurrency: cfg.WorkerConcurrency,
	})

	queues := []string{queue.ThumbnailQueue, queue.EmailQueue}

	if *drain {
		for _, name := range queues {
			n, err := worker.Drain(ctx, name)
			if err != nil {
				log.WithError(err).WithField("queue", name).Error("drain failed")
				continue
			}
			stats, err := client.Stats(ctx, name)
			if err != nil {
				log.WithError(err).WithField("queue", name).Error("failed to read queue stats")
				continue
			}
			log.WithFields(logrus.Fields{
				"queue":   name,
				"handled": n,
				"delayed": stats.Delayed,
				"failed":  stats.Failed,
			}).Info("queue drained")
		}
		return
	}

	if err := worker.Run(ctx, queues...); err != nil {
		log.WithError(err).Error("worker stopped")
	}
	log.Info("worker exited")
}
