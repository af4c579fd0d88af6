package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Emitter produces user-facing notification records on terminal payment
// transitions. Best effort: a failed insert is logged and swallowed, never
// rolling back or blocking the payment transition that triggered it.
// Callers invoke it only after their transaction has committed.
type Emitter struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewEmitter(db *gorm.DB) *Emitter {
	return &Emitter{db: db, logger: slog.Default()}
}

func (e *Emitter) SetLogger(l *slog.Logger) { e.logger = l }

func (e *Emitter) Notify(ctx context.Context, userID, kind string, kv map[string]any) {
	if userID == "" {
		return
	}

	payload, err := json.Marshal(kv)
	if err != nil {
		e.logger.WarnContext(ctx, "notification context not serializable", "user_id", userID, "kind", kind, "err", err)
		payload = []byte("{}")
	}

	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Context:   datatypes.JSON(payload),
		CreatedAt: time.Now(),
	}
	if err := e.db.WithContext(ctx).Create(&n).Error; err != nil {
		e.logger.WarnContext(ctx, "notification insert failed", "user_id", userID, "kind", kind, "err", err)
	}
}
