package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskboard/backend/api/transport"
	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/internal/query"
	"github.com/taskboard/backend/pkg/httpcontext"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respond(ctx *fasthttp.RequestCtx, status int, message string, data interface{}) {
	h.respondJSON(ctx, status, transport.New(message, data))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		h.respond(ctx, status, "server error", err.Error())
		return
	}
	h.respond(ctx, status, err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeInvalid),
		domain.IsDomainError(err, domain.ErrCodeBadQuery):
		return http.StatusBadRequest
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func queryParams(ctx *fasthttp.RequestCtx) query.Params {
	args := ctx.QueryArgs()
	return query.Params{
		Where:  string(args.Peek("where")),
		Sort:   string(args.Peek("sort")),
		Select: string(args.Peek("select")),
		Skip:   string(args.Peek("skip")),
		Limit:  string(args.Peek("limit")),
		Count:  string(args.Peek("count")),
	}
}

func pathID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("id").(string)
	return id
}
