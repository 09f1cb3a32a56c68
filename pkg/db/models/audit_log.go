package models

import (
	"encoding/json"
	"time"

	"github.com/candemirel/vitrin-backend/pkg/enums"
)

// AuditLog is the append-only event stream written by every mutating core
// operation. Payload holds the typed event struct serialized as JSON.
type AuditLog struct {
	ID       int64             `gorm:"column:id;primaryKey;autoIncrement"`
	Action   enums.AuditAction `gorm:"column:action;type:text;not null;index"`
	Entity   string            `gorm:"column:entity;not null"`
	EntityID string            `gorm:"column:entity_id;not null;index"`
	Actor    string            `gorm:"column:actor;not null"`
	Payload  json.RawMessage   `gorm:"column:payload;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
