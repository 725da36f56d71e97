package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cropsight/cropsight-api/internal/api/middleware"
)

// NewRouter assembles the HTTP routes for the service: the processing
// pipeline endpoints, the monitoring session endpoints and the duplex
// endpoint for stations.
func NewRouter(
	pipelineHandler *PipelineHandler,
	monitoringHandler *MonitoringHandler,
	wsHandler *WSHandler,
) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Trace)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// Processing pipeline
		r.Post("/process", pipelineHandler.Process)
		r.Post("/process/sync", pipelineHandler.ProcessSync)
		r.Get("/process/{runID}/status", pipelineHandler.GetStatus)
		r.Get("/process/{runID}/result", pipelineHandler.GetRunResult)
		r.Get("/results/{imageID}", pipelineHandler.GetImageResult)

		// Monitoring sessions
		r.Route("/monitoring", func(r chi.Router) {
			r.Post("/sessions", monitoringHandler.CreateSession)
			r.Get("/sessions/active/{stationID}", monitoringHandler.GetActiveSession)
			r.Get("/sessions/{stationID}/{sessionID}", monitoringHandler.GetSession)
			r.Put("/sessions/{stationID}/{sessionID}", monitoringHandler.UpdateSession)
			r.Post("/sessions/{stationID}/{sessionID}/stop", monitoringHandler.StopSession)
			r.Post("/sessions/{stationID}/{sessionID}/captures", monitoringHandler.RecordCapture)

			r.Get("/captures/{sessionID}", monitoringHandler.ListCaptures)
			r.Put("/captures/{sessionID}/{captureID}", monitoringHandler.UpdateCapture)

			r.Get("/stations/active", monitoringHandler.ListActiveStations)
		})
	})

	// Station duplex endpoint
	r.Get("/ws", wsHandler.Serve)

	return r
}
