package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shelfpost/shelfpost/pkg/config"
	"github.com/shelfpost/shelfpost/pkg/database"
	"github.com/shelfpost/shelfpost/pkg/migrations"
	"github.com/shelfpost/shelfpost/pkg/server"
	"github.com/shelfpost/shelfpost/pkg/source"
	"github.com/shelfpost/shelfpost/pkg/storage"
	"github.com/shelfpost/shelfpost/pkg/sync"
	"github.com/shelfpost/shelfpost/pkg/tasks"
	"github.com/shelfpost/shelfpost/pkg/version"
	"github.com/shelfpost/shelfpost/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting shelfpost", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	store, err := storage.NewLocalStorage(cfg.MediaDir)
	if err != nil {
		log.Err(err).Fatal("media directory error")
	}
	log.Info("media directory initialized", logger.Data{"path": cfg.MediaDir})

	gateway := source.NewGatewayClient(source.GatewayClientOptions{
		BaseURL: cfg.GatewayBaseURL,
		Token:   cfg.GatewayToken,
	})

	registry := tasks.NewRegistry()
	syncService := sync.NewService(cfg, db, gateway, store, registry)

	wrkr := worker.New(cfg, syncService, registry)

	srv, err := server.New(cfg, db, syncService, registry)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
