package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/crm/internal/backup"
	"github.com/dukerupert/crm/internal/scheduler"
)

// BackupHandler serves the backup API.
type BackupHandler struct {
	mgr    *backup.Manager
	auto   *scheduler.Adapter
	loc    *time.Location
	logger *slog.Logger
}

func NewBackupHandler(mgr *backup.Manager, auto *scheduler.Adapter, loc *time.Location, logger *slog.Logger) *BackupHandler {
	if loc == nil {
		loc = time.Local
	}
	return &BackupHandler{mgr: mgr, auto: auto, loc: loc, logger: logger}
}

type backupResponse struct {
	backup.Record
	Size      string `json:"size"`
	CreatedAt string `json:"created_at"`
}

func (h *BackupHandler) toResponse(rec backup.Record) backupResponse {
	return backupResponse{
		Record:    rec,
		Size:      backup.FormatSize(rec.SizeBytes),
		CreatedAt: backup.FormatTimestamp(rec.CreatedAtMillis, h.loc),
	}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.mgr.List(r.Context())
	if err != nil {
		h.fail(w, "list backups", err)
		return
	}

	out := make([]backupResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, h.toResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	rec, err := h.mgr.Create(r.Context(), backup.TriggerManual)
	if err != nil {
		h.fail(w, "create backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(rec))
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.mgr.Delete(r.Context(), path); err != nil {
		h.fail(w, "delete backup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type restoreResponse struct {
	Restored     string         `json:"restored"`
	SafetyBackup backupResponse `json:"safety_backup"`
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolve(w, r)
	if !ok {
		return
	}
	safety, err := h.mgr.Restore(r.Context(), path)
	if err != nil {
		h.fail(w, "restore backup", err)
		return
	}
	writeJSON(w, http.StatusOK, restoreResponse{
		Restored:     r.PathValue("name"),
		SafetyBackup: h.toResponse(safety),
	})
}

type statusResponse struct {
	backup.Status
	LastBackup string `json:"last_backup,omitempty"`
	NextBackup string `json:"next_backup,omitempty"`
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.mgr.Status(r.Context())
	if err != nil {
		h.fail(w, "backup status", err)
		return
	}

	resp := statusResponse{Status: st}
	if st.LastBackupAtMillis != nil {
		resp.LastBackup = backup.FormatTimestamp(*st.LastBackupAtMillis, h.loc)
	}
	if st.NextBackupAtMillis != nil {
		resp.NextBackup = backup.FormatTimestamp(*st.NextBackupAtMillis, h.loc)
	}
	writeJSON(w, http.StatusOK, resp)
}

type autoRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *BackupHandler) SetAuto(w http.ResponseWriter, r *http.Request) {
	var req autoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `body must be {"enabled": true|false}`})
		return
	}

	if err := h.auto.SetEnabled(r.Context(), *req.Enabled); err != nil {
		h.fail(w, "set auto backup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (h *BackupHandler) Locations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"database": h.mgr.DatabaseLocation(),
		"backups":  h.mgr.BackupLocation(),
	})
}

func (h *BackupHandler) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	path, err := h.mgr.Store().PathFor(r.PathValue("name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid backup name"})
		return "", false
	}
	return path, true
}

func (h *BackupHandler) fail(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status >= 500 {
		h.logger.Error(op, "error", err)
	} else {
		h.logger.Warn(op, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, backup.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, backup.ErrBackupMissing):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrSourceMissing):
		return http.StatusConflict
	case errors.Is(err, backup.ErrCorruptBackup):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrSchedulerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
