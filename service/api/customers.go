package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/ecdb-dev/ecdb/service/api/reqcontext"
)

func (rt *_router) getCustomers(w http.ResponseWriter, r *http.Request, ps httprouter.Params, ctx reqcontext.RequestContext) {
	customers, err := rt.state.DB().Customers(r.Context())
	if err != nil {
		ctx.Logger.WithError(err).Error("can't list customers")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	rt.writeJSON(w, http.StatusOK, customers)
}
