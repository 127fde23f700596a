package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func NewRouter(shifts *ShiftHandler, ops *OpsHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	ops.RegisterRoutes(r)
	shifts.RegisterRoutes(r)
	return r
}
