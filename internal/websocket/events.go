package websocket

import (
	"github.com/dukerupert/crm/internal/backup"
)

const entityBackup = "backup"

// BackupMessage converts a backup manager event into a client message, for
// example "backup_created" or "backup_auto_changed".
func BackupMessage(e backup.Event) Message {
	extra := map[string]any{}
	switch e.Action {
	case backup.ActionCreated:
		extra["trigger"] = string(e.Trigger)
		extra["created_at_millis"] = e.Record.CreatedAtMillis
		extra["size_bytes"] = e.Record.SizeBytes
		extra["size"] = backup.FormatSize(e.Record.SizeBytes)
	case backup.ActionAutoChanged:
		extra["enabled"] = e.Enabled
	}
	if len(extra) == 0 {
		extra = nil
	}
	return NewMessage(entityBackup, string(e.Action), e.Record.Filename, extra)
}

// NotifyBackup broadcasts a backup event. It matches backup.EventCallback.
func (h *Hub) NotifyBackup(e backup.Event) {
	h.Broadcast(BackupMessage(e))
}
