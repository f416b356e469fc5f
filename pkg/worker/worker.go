package worker

import (
	"context"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfpost/shelfpost/pkg/config"
	"github.com/shelfpost/shelfpost/pkg/sync"
	"github.com/shelfpost/shelfpost/pkg/tasks"
)

// Worker runs a scheduled auto sync on a fixed interval. It is the only
// in-process scheduler, which together with the HTTP handlers' active-task
// check keeps at most one sync running at a time.
type Worker struct {
	config      *config.Config
	log         logger.Logger
	syncService *sync.Service
	registry    *tasks.Registry

	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, syncService *sync.Service, registry *tasks.Registry) *Worker {
	return &Worker{
		config:      cfg,
		log:         logger.New(),
		syncService: syncService,
		registry:    registry,

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.loop()
}

func (w *Worker) loop() {
	interval := w.config.SyncInterval()
	if interval <= 0 {
		// scheduling disabled; only wait for shutdown
		<-w.shutdown
		w.done <- struct{}{}
		return
	}

	timer := time.NewTimer(interval)
	for {
		select {
		case <-w.shutdown:
			w.done <- struct{}{}
			return
		case <-timer.C:
			w.runOnce()
			timer.Reset(interval)
		}
	}
}

func (w *Worker) runOnce() {
	taskID, ok := w.registry.CreateIfIdle()
	if !ok {
		w.log.Info("skipping scheduled sync, another run is active")
		return
	}
	log := w.log.ID(taskID).Root(logger.Data{"task_id": taskID})
	ctx := log.WithContext(context.Background())

	result, err := w.syncService.RunAutoSync(ctx, taskID, 0)
	if err != nil {
		log.Err(err).Error("scheduled sync failed")
		_ = w.registry.UpdateStatus(taskID, tasks.StatusFailed, err.Error())
		return
	}

	_ = w.registry.UpdateProgress(taskID, 100, nil, result)
	_ = w.registry.UpdateStatus(taskID, tasks.StatusCompleted, "")
	log.Info("scheduled sync completed", logger.Data{
		"added":   result.Metadata.Added,
		"updated": result.Metadata.Updated,
		"skipped": result.Metadata.Skipped,
		"errors":  result.Metadata.Errors,
		"linked":  result.Files.Linked,
	})
}

func (w *Worker) Shutdown() {
	close(w.shutdown)
	<-w.done
}
