package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/altio"
	"github.com/shehryarbajwa/devicecloud-mini/internal/catalog"
	"github.com/shehryarbajwa/devicecloud-mini/internal/log"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/session"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

const deleteTimeout = 30 * time.Second

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessionMgr *session.Manager
	catalog    *catalog.Catalog
	auth       *models.Authentication
	logger     zerolog.Logger
}

// NewHandler creates a new HTTP handler. Every device cloud call is made
// on behalf of auth.
func NewHandler(sessionMgr *session.Manager, cat *catalog.Catalog, auth *models.Authentication, logger zerolog.Logger) *Handler {
	return &Handler{
		sessionMgr: sessionMgr,
		catalog:    cat,
		auth:       auth,
		logger:     logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

// errorStatus maps a session or transport error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, catalog.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrCapacity):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if network.KindOf(err) == network.KindUnauthorized {
		return http.StatusUnauthorized
	}
	var ne *network.Error
	if errors.As(err, &ne) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger := log.WithContext(r.Context(), h.logger)
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

// ListDevices handles GET /v1/devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.catalog.Devices(r.Context(), h.auth)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	osFilter := r.URL.Query().Get("os")
	onlyFree := r.URL.Query().Get("available") == "true"
	filtered := make([]models.AvailableDevice, 0, len(devices))
	for _, d := range devices {
		if osFilter != "" && !strings.EqualFold(d.OS, osFilter) {
			continue
		}
		if onlyFree && d.InUse {
			continue
		}
		filtered = append(filtered, d)
	}

	writeJSON(w, http.StatusOK, filtered)
}

// ListApps handles GET /v1/apps
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	groups, err := h.catalog.AppGroups(r.Context(), h.auth)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// ListAppFiles handles GET /v1/apps/{groupId}/files
func (h *Handler) ListAppFiles(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.Atoi(mux.Vars(r)["groupId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group id")
		return
	}

	files, err := h.catalog.AppFiles(r.Context(), h.auth, groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.DeviceDescriptorID) == "" {
		writeError(w, http.StatusBadRequest, "deviceDescriptorId is required")
		return
	}

	var launcher session.Launcher
	switch {
	case req.IsApp():
		launcher = session.AppLauncher{GroupID: req.AppGroupID, FileID: req.AppFileID}
	case strings.TrimSpace(req.URL) != "":
		launcher = session.URLLauncher{URL: req.URL}
	default:
		writeError(w, http.StatusBadRequest, "either url or appGroupId and appFileId are required")
		return
	}

	s, err := h.sessionMgr.CreateSession(h.auth, req.DeviceDescriptorID, launcher)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logger := log.WithContext(r.Context(), h.logger)
	logger.Info().
		Str("handle", s.ID).
		Str("device", req.DeviceDescriptorID).
		Msg("session requested")
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessionMgr.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	live := r.URL.Query().Get("live") == "true"

	snapshots := make([]session.Snapshot, 0)
	for _, snap := range h.sessionMgr.Snapshots() {
		if live && snap.Closed {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), deleteTimeout)
	defer cancel()
	if err := h.sessionMgr.DeleteSession(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetOrientation handles POST /v1/sessions/{id}/orientation
func (h *Handler) SetOrientation(w http.ResponseWriter, r *http.Request) {
	var req models.OrientationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.Orientation = models.Orientation(strings.ToUpper(string(req.Orientation)))
	if !req.Orientation.Valid() {
		writeError(w, http.StatusBadRequest, "orientation must be PORTRAIT or LANDSCAPE")
		return
	}

	h.runCommand(w, r, func(ctx context.Context, s *session.Session) error {
		return s.SetOrientation(ctx, req.Orientation)
	})
}

// PasteText handles POST /v1/sessions/{id}/paste
func (h *Handler) PasteText(w http.ResponseWriter, r *http.Request) {
	var req models.PasteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	h.runCommand(w, r, func(ctx context.Context, s *session.Session) error {
		return s.SendPasteText(ctx, req.Text)
	})
}

// RestartApp handles POST /v1/sessions/{id}/restart
func (h *Handler) RestartApp(w http.ResponseWriter, r *http.Request) {
	h.runCommand(w, r, func(ctx context.Context, s *session.Session) error {
		return s.RestartApp(ctx)
	})
}

// PressKey handles POST /v1/sessions/{id}/key
func (h *Handler) PressKey(w http.ResponseWriter, r *http.Request) {
	var req models.KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	s, err := h.sessionMgr.GetSession(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ready := s.Ready()
	if ready == nil {
		h.fail(w, r, session.ErrNotReady)
		return
	}
	if ready.AlternativeIO.Closed() {
		h.fail(w, r, session.ErrClosed)
		return
	}

	line, err := altio.NormalizeLine("tt/"+req.Key, altio.AvailableKeys(ready.Descriptor))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ready.AlternativeIO.Send(line)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) runCommand(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, s *session.Session) error) {
	s, err := h.sessionMgr.GetSession(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := run(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSessionScreenshot handles GET /v1/sessions/{id}/screenshot
func (h *Handler) GetSessionScreenshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionMgr.GetSession(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ready := s.Ready()
	if ready == nil {
		h.fail(w, r, session.ErrNotReady)
		return
	}

	frame := ready.AlternativeIO.LatestScreenshot()
	if frame == nil {
		writeError(w, http.StatusNotFound, "No screenshot received yet")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(frame))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(frame)
}
