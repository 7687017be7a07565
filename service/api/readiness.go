package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/ecdb-dev/ecdb/service/api/reqcontext"
)

type readinessResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

var (
	ready    = readinessResponse{Status: "ready", Database: "connected"}
	notReady = readinessResponse{Status: "not ready", Database: "disconnected"}
)

// readiness probes the database once per request. The outcome is in the body: the status code is 200 either way.
func (rt *_router) readiness(w http.ResponseWriter, r *http.Request, ps httprouter.Params, ctx reqcontext.RequestContext) {
	probeCtx := r.Context()
	if rt.healthTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(probeCtx, rt.healthTimeout)
		defer cancel()
	}

	if !rt.state.DB().Health(probeCtx) {
		// An unreachable database is an expected condition here, not an application error.
		ctx.Logger.Debug("database unreachable, reporting not ready")
		databaseReady.Set(0)
		rt.writeJSON(w, http.StatusOK, notReady)
		return
	}

	databaseReady.Set(1)
	rt.writeJSON(w, http.StatusOK, ready)
}
