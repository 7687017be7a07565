package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

type statusResponse struct {
	Status string `json:"status"`
}

// liveness answers immediately, without looking at any dependency.
func (rt *_router) liveness(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rt.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
