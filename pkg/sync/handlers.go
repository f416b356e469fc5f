package sync

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	echologger "github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfpost/shelfpost/pkg/errcodes"
	"github.com/shelfpost/shelfpost/pkg/tasks"
)

type runFunc func(ctx context.Context, taskID string, limit int) (*Result, error)

type handler struct {
	syncService *Service
	registry    *tasks.Registry
}

func (h *handler) fullSync(c echo.Context) error {
	return h.start(c, h.syncService.RunFullSync)
}

func (h *handler) updateSync(c echo.Context) error {
	return h.start(c, h.syncService.RunUpdateSync)
}

func (h *handler) autoSync(c echo.Context) error {
	return h.start(c, h.syncService.RunAutoSync)
}

func (h *handler) linkFiles(c echo.Context) error {
	return h.start(c, func(ctx context.Context, taskID string, _ int) (*Result, error) {
		return h.syncService.RunLinkFiles(ctx, taskID)
	})
}

// start kicks off a run in the background and returns the task id
// immediately. Only one run may be active at a time; the request context is
// deliberately not used for the run so that a disconnecting caller doesn't
// abort it.
func (h *handler) start(c echo.Context, run runFunc) error {
	params := StartSyncPayload{}
	c.Set("disallow_empty_body", false)
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	taskID, ok := h.registry.CreateIfIdle()
	if !ok {
		return errcodes.Conflict("A sync is already running or pending.")
	}
	log := echologger.FromEchoContext(c).Root(logger.Data{"task_id": taskID})

	go func() {
		ctx := log.WithContext(context.Background())

		result, err := run(ctx, taskID, params.Limit)
		if err != nil {
			log.Err(err).Error("sync run failed")
			_ = h.registry.UpdateStatus(taskID, tasks.StatusFailed, err.Error())
			return
		}
		_ = h.registry.UpdateProgress(taskID, 100, nil, result)
		_ = h.registry.UpdateStatus(taskID, tasks.StatusCompleted, "")
	}()

	resp := struct {
		TaskID string `json:"task_id"`
	}{taskID}

	return errors.WithStack(c.JSON(http.StatusAccepted, resp))
}

func (h *handler) retrieveTask(c echo.Context) error {
	task, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return errcodes.NotFound("Task")
	}

	resp := TaskResponse{
		ID:        task.ID,
		Status:    string(task.Status),
		Progress:  task.Progress,
		Message:   task.Message(),
		Result:    task.Result,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
		UpdatedAt: task.UpdatedAt.Format(time.RFC3339),
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
