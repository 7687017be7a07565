package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/ecdb-dev/ecdb/service/api/reqcontext"
)

// hello is a static placeholder used to confirm the routing is wired.
func (rt *_router) hello(w http.ResponseWriter, r *http.Request, ps httprouter.Params, ctx reqcontext.RequestContext) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello, World!"))
}
