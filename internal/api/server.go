package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/proxy"
	"github.com/shehryarbajwa/devicecloud-mini/internal/ratelimit"
)

// Limits are the throttles applied to the API.
type Limits struct {
	// Creates throttles POST /v1/sessions per client address.
	Creates          *ratelimit.Limiter
	CreatesPerMinute int
	// Commands throttles post-ready commands per session.
	Commands          *ratelimit.Limiter
	CommandsPerMinute int
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(artifactHandler *ArtifactHandler, proxyServer *proxy.Server, limits Limits, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Catalog endpoints
	api.HandleFunc("/devices", h.ListDevices).Methods("GET")
	api.HandleFunc("/apps", h.ListApps).Methods("GET")
	api.HandleFunc("/apps/{groupId:[0-9]+}/files", h.ListAppFiles).Methods("GET")

	// Session creation (rate limited per client)
	limitCreates := RateLimitMiddleware(limits.Creates, limits.CreatesPerMinute, ClientKey)
	api.Handle("/sessions", limitCreates(http.HandlerFunc(h.CreateSession))).Methods("POST")

	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")

	// Post-ready commands (rate limited per session)
	limitCommands := RateLimitMiddleware(limits.Commands, limits.CommandsPerMinute, SessionKey)
	api.Handle("/sessions/{id}/orientation", limitCommands(http.HandlerFunc(h.SetOrientation))).Methods("POST")
	api.Handle("/sessions/{id}/paste", limitCommands(http.HandlerFunc(h.PasteText))).Methods("POST")
	api.Handle("/sessions/{id}/restart", limitCommands(http.HandlerFunc(h.RestartApp))).Methods("POST")
	api.Handle("/sessions/{id}/key", limitCommands(http.HandlerFunc(h.PressKey))).Methods("POST")

	// Screenshot endpoint (not rate limited - frequent polling)
	api.HandleFunc("/sessions/{id}/screenshot", h.GetSessionScreenshot).Methods("GET")

	// Viewer websocket
	api.HandleFunc("/sessions/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		proxyServer.HandleViewerConnection(w, r, mux.Vars(r)["id"])
	}).Methods("GET")

	// Artifact endpoints
	if artifactHandler != nil {
		api.HandleFunc("/artifacts", artifactHandler.ListArtifacts).Methods("GET")
		api.HandleFunc("/artifacts/{id}", artifactHandler.GetArtifact).Methods("GET")
		api.HandleFunc("/artifacts/{id}", artifactHandler.DeleteArtifact).Methods("DELETE")
		api.HandleFunc("/artifacts/{id}/download", artifactHandler.DownloadArtifact).Methods("GET")
		api.HandleFunc("/artifacts/{id}/logs", artifactHandler.GetArtifactLogs).Methods("GET")
	}

	r.Use(RequestLogger(logger))
	r.Use(corsMiddleware)

	return r
}
