package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/internal/query"
	"github.com/taskboard/backend/pkg/httpcontext"
	taskUC "github.com/taskboard/backend/usecase/task"
)

type TaskHandler struct {
	baseHandler
	uc *taskUC.UseCase
}

func NewTaskHandler(uc *taskUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List or count tasks
// @Tags tasks
// @Router /api/tasks [get]
func (h *TaskHandler) List(ctx *fasthttp.RequestCtx) {
	q, err := query.Translate(queryParams(ctx))
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if q.Count {
		count, err := h.uc.Count(stdCtx, q.Where)
		if err != nil {
			h.respondError(ctx, err)
			return
		}
		h.respond(ctx, http.StatusOK, "OK", count)
		return
	}

	tasks, err := h.uc.List(stdCtx, q)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	docs, err := query.Project(q.Select, tasks)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "OK", docs)
}

// @Summary Create task
// @Tags tasks
// @Router /api/tasks [post]
func (h *TaskHandler) Create(ctx *fasthttp.RequestCtx) {
	task, ok := h.parseTask(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.Create(stdCtx, task)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusCreated, "Task Created", created)
}

// @Summary Fetch task
// @Tags tasks
// @Router /api/tasks/{id} [get]
func (h *TaskHandler) Get(ctx *fasthttp.RequestCtx) {
	q, err := query.Translate(queryParams(ctx))
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.Get(stdCtx, pathID(ctx))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	doc, err := query.Project(q.Select, task)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "OK", doc)
}

// @Summary Update task
// @Tags tasks
// @Router /api/tasks/{id} [put]
func (h *TaskHandler) Update(ctx *fasthttp.RequestCtx) {
	task, ok := h.parseTask(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.Update(stdCtx, pathID(ctx), task)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "Task Updated", updated)
}

// @Summary Delete task
// @Tags tasks
// @Router /api/tasks/{id} [delete]
func (h *TaskHandler) Delete(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Delete(stdCtx, pathID(ctx)); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "Task Deleted", nil)
}

func (h *TaskHandler) parseTask(ctx *fasthttp.RequestCtx) (*domain.Task, bool) {
	var task domain.Task
	if err := json.Unmarshal(ctx.PostBody(), &task); err != nil {
		h.respondError(ctx, domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err))
		return nil, false
	}
	return &task, true
}
