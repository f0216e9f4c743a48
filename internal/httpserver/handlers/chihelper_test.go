package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// withChiContext attaches a chi route context to r, the way chi's router
// would before dispatching to a handler, so handlers reading chi.URLParam
// can be exercised directly without a full router.
func withChiContext(r *http.Request, rctx *chi.Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
