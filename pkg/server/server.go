package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/shelfpost/shelfpost/pkg/binder"
	"github.com/shelfpost/shelfpost/pkg/books"
	"github.com/shelfpost/shelfpost/pkg/config"
	"github.com/shelfpost/shelfpost/pkg/errcodes"
	syncpkg "github.com/shelfpost/shelfpost/pkg/sync"
	"github.com/shelfpost/shelfpost/pkg/tasks"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, syncService *syncpkg.Service, registry *tasks.Registry) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	booksGroup := e.Group("/books")
	books.RegisterRoutesWithGroup(booksGroup, db)

	syncGroup := e.Group("")
	syncpkg.RegisterRoutesWithGroup(syncGroup, syncService, registry)

	// downloaded covers and book files are served straight off disk
	e.Static("/media", cfg.MediaDir)

	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}
