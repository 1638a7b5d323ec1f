package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/devicecloud-mini/internal/artifacts"
)

// ArtifactHandler holds dependencies for artifact HTTP handlers
type ArtifactHandler struct {
	store *artifacts.Manager
}

// NewArtifactHandler creates a new artifact HTTP handler
func NewArtifactHandler(store *artifacts.Manager) *ArtifactHandler {
	return &ArtifactHandler{
		store: store,
	}
}

// ListArtifacts handles GET /v1/artifacts
func (h *ArtifactHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	list := h.store.ListArtifacts(r.URL.Query().Get("deviceSessionId"))
	if list == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetArtifact handles GET /v1/artifacts/{id}
func (h *ArtifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.store.GetArtifact(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// DownloadArtifact handles GET /v1/artifacts/{id}/download
func (h *ArtifactHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	archive, err := h.store.OpenArchive(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	defer archive.Close()

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.tar.gz"`)
	io.Copy(w, archive)
}

// GetArtifactLogs handles GET /v1/artifacts/{id}/logs
func (h *ArtifactHandler) GetArtifactLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ReadEntries(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(entries[artifacts.LogsFile])
}

// DeleteArtifact handles DELETE /v1/artifacts/{id}
func (h *ArtifactHandler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteArtifact(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
