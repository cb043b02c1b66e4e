package router

import (
	"github.com/fasthttp/router"

	apiHandler "github.com/taskboard/backend/api/handler"
)

type Handlers struct {
	Task   *apiHandler.TaskHandler
	User   *apiHandler.UserHandler
	Health *apiHandler.HealthHandler
}

func New(handlers Handlers) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	r.GET("/api/tasks", handlers.Task.List)
	r.POST("/api/tasks", handlers.Task.Create)
	r.GET("/api/tasks/{id}", handlers.Task.Get)
	r.PUT("/api/tasks/{id}", handlers.Task.Update)
	r.DELETE("/api/tasks/{id}", handlers.Task.Delete)

	r.GET("/api/users", handlers.User.List)
	r.POST("/api/users", handlers.User.Create)
	r.GET("/api/users/{id}", handlers.User.Get)
	r.PUT("/api/users/{id}", handlers.User.Update)
	r.DELETE("/api/users/{id}", handlers.User.Delete)

	return r
}
