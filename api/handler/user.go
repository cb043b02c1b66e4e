package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskboard/backend/api/transport"
	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/internal/query"
	"github.com/taskboard/backend/pkg/httpcontext"
	userUC "github.com/taskboard/backend/usecase/user"
)

type UserHandler struct {
	baseHandler
	uc *userUC.UseCase
}

func NewUserHandler(uc *userUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List or count users
// @Tags users
// @Router /api/users [get]
func (h *UserHandler) List(ctx *fasthttp.RequestCtx) {
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

	users, err := h.uc.List(stdCtx, q)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	docs, err := query.Project(q.Select, users)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "OK", docs)
}

// @Summary Create user
// @Tags users
// @Router /api/users [post]
func (h *UserHandler) Create(ctx *fasthttp.RequestCtx) {
	user, ok := h.parseUser(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.Create(stdCtx, user)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusCreated, "User Created", created)
}

// @Summary Fetch user
// @Tags users
// @Router /api/users/{id} [get]
func (h *UserHandler) Get(ctx *fasthttp.RequestCtx) {
	q, err := query.Translate(queryParams(ctx))
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.Get(stdCtx, pathID(ctx))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	doc, err := query.Project(q.Select, user)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "OK", doc)
}

// @Summary Update user
// @Tags users
// @Router /api/users/{id} [put]
func (h *UserHandler) Update(ctx *fasthttp.RequestCtx) {
	user, ok := h.parseUser(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.Update(stdCtx, pathID(ctx), user)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "User Updated", updated)
}

// @Summary Delete user
// @Tags users
// @Router /api/users/{id} [delete]
func (h *UserHandler) Delete(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Delete(stdCtx, pathID(ctx)); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, "User Deleted", nil)
}

func (h *UserHandler) parseUser(ctx *fasthttp.RequestCtx) (*domain.User, bool) {
	var req transport.UserRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err))
		return nil, false
	}
	return &domain.User{
		Name:         req.Name,
		Email:        req.Email,
		PendingTasks: req.PendingTasks,
	}, true
}
