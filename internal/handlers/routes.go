package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes registers every API endpoint on r.
func (h *Handlers) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", h.UploadVideo).Methods(http.MethodPost).Name("upload")
	api.HandleFunc("/upload/", h.UploadVideo).Methods(http.MethodPost)
	api.HandleFunc("/status/{id}", h.VideoStatus).Methods(http.MethodGet).Name("status")
	api.HandleFunc("/status/{id}/", h.VideoStatus).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}/clips", h.CreateClips).Methods(http.MethodPost).Name("create_clips")
	api.HandleFunc("/assets/{id}/clips", h.ListClips).Methods(http.MethodGet)
	api.HandleFunc("/clips/{id}", h.ClipStatus).Methods(http.MethodGet).Name("clip_status")

	r.PathPrefix("/media/").HandlerFunc(h.ServeMedia).Methods(http.MethodGet, http.MethodHead)
}
