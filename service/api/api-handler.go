package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an instance of httprouter.Router that handle APIs registered here
func (rt *_router) Handler() http.Handler {
	// Liveness (NOT WRAPPED): it must answer even when nothing else works
	rt.router.GET("/api/check/alive", rt.liveness)
	rt.router.GET("/api/check/ready", rt.wrap(rt.readiness))

	rt.router.GET("/api/test", rt.wrap(rt.hello))
	rt.router.GET("/api/customers", rt.wrap(rt.getCustomers))

	rt.router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	// A panicking handler gets a bare 500; the panic value goes to the log, never to the client.
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(rt.baseLogger),
		handlers.PrintRecoveryStack(false),
	)
	return recovery(rt.router)
}
