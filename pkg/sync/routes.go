package sync

import (
	"github.com/labstack/echo/v4"
	"github.com/shelfpost/shelfpost/pkg/tasks"
)

// RegisterRoutesWithGroup registers sync routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, syncService *Service, registry *tasks.Registry) {
	h := &handler{
		syncService: syncService,
		registry:    registry,
	}

	g.POST("/sync/full", h.fullSync)
	g.POST("/sync/update", h.updateSync)
	g.POST("/sync/auto", h.autoSync)
	g.POST("/sync/files", h.linkFiles)
	g.GET("/tasks/:id", h.retrieveTask)
}
