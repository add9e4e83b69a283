package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes wires the REST surface. Read endpoints are public; mutating
// endpoints sit behind the API-key middleware.
func SetupRoutes(h *Handlers, apiKey string) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/resumen", h.GetResumen).Methods(http.MethodGet)
	api.HandleFunc("/dependencias", h.GetDependencias).Methods(http.MethodGet)
	api.HandleFunc("/tramites", h.GetTramites).Methods(http.MethodGet)
	api.HandleFunc("/export/csv", h.ExportCSV).Methods(http.MethodGet)
	api.HandleFunc("/anios", h.GetAnios).Methods(http.MethodGet)
	api.HandleFunc("/metas", h.GetMetas).Methods(http.MethodGet)
	api.HandleFunc("/metas/avance", h.GetAvanceMetas).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(RequireAPIKey(apiKey))
	protected.HandleFunc("/upload/csv", h.UploadCSV).Methods(http.MethodPost)
	protected.HandleFunc("/upload/preview", h.PreviewCSV).Methods(http.MethodPost)
	protected.HandleFunc("/cargas", h.GetCargaLogs).Methods(http.MethodGet)
	protected.HandleFunc("/metas", h.UpdateMetas).Methods(http.MethodPut)

	return router
}
