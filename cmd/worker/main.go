package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/calybase/calybase-backend/config"
	"github.com/calybase/calybase-backend/internal/bootstrap"
	"github.com/calybase/calybase-backend/internal/jobs"
	"github.com/calybase/calybase-backend/internal/logger"
)

// usage: worker [run-once <job>]
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.LogLevel, cfg.App.Environment).WithComponent("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize services", err)
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error("closing services", err)
		}
	}()

	reconcile := jobs.NewReconcileJob(app.UserAdmin, app, log)
	archive := jobs.NewArchiveJob(app.Archiver, log)
	sched := jobs.NewScheduler(ctx, log)

	if len(os.Args) >= 3 && os.Args[1] == "run-once" {
		switch os.Args[2] {
		case reconcile.Name():
			sched.RunNow(reconcile)
		case archive.Name():
			sched.RunNow(archive)
		default:
			log.Warnf("unknown job: %s", os.Args[2])
		}
		return
	}

	if err := sched.Add(cfg.Worker.ReconcileSchedule, reconcile); err != nil {
		log.Fatal("invalid reconcile schedule", err)
	}
	if err := sched.Add(cfg.Worker.ArchiveSchedule, archive); err != nil {
		log.Fatal("invalid archive schedule", err)
	}
	sched.Start()

	<-ctx.Done()
	log.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		log.Error("waiting for running jobs", err)
	}
}
