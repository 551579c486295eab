// Package ledger is the append-only audit collaborator for every
// resource-affecting operation. Writes are best-effort: a failed audit
// insert is logged and never fails the enclosing operation.
package ledger

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/persistence"
)

// Logger appends audit rows with before/after balance snapshots.
type Logger struct {
	db *persistence.DB
}

// New creates an audit logger.
func New(db *persistence.DB) *Logger {
	return &Logger{db: db}
}

// Log records one balance-affecting event. Fire-and-forget: errors are
// reported through slog only.
func (l *Logger) Log(ownerID int64, event string, amount int64, before, after game.Balances, meta map[string]any) {
	metaJSON := []byte("{}")
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			metaJSON = raw
		}
	}

	_, err := l.db.Conn().Exec(`INSERT INTO audit_log
		(id, owner_id, event, amount, on_hand_before, banked_before, on_hand_after, banked_after, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ownerID, event, amount,
		before.OnHand, before.Banked, after.OnHand, after.Banked,
		string(metaJSON), time.Now().UTC())
	if err != nil {
		slog.Warn("audit log write failed", "owner", ownerID, "event", event, "error", err)
		return
	}

	slog.Debug("audit",
		"owner", ownerID,
		"event", event,
		"amount", humanize.Comma(amount),
		"on_hand", humanize.Comma(after.OnHand),
		"banked", humanize.Comma(after.Banked),
	)
}
