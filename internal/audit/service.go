package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/candemirel/vitrin-backend/pkg/db/models"
	"github.com/candemirel/vitrin-backend/pkg/enums"
	"gorm.io/gorm"
)

// SystemActor identifies entries written by background processing rather than
// an authenticated caller.
const SystemActor = "system"

// Entity names used for audit entries.
const (
	EntityOrder   = "order"
	EntityItem    = "order_item"
	EntityCoupon  = "coupon"
	EntityLoyalty = "loyalty_account"
	EntityWebhook = "webhook"
)

// Service defines operations that record audit entries.
type Service interface {
	Record(ctx context.Context, input RecordEntryInput) (*models.AuditLog, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.AuditLog, error)
	ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditLog, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data an audit entry requires.
// Payload may be any JSON-serializable value; typed payload structs live in
// payloads.go.
type RecordEntryInput struct {
	Action   enums.AuditAction
	Entity   string
	EntityID string
	Actor    string
	Payload  any
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input RecordEntryInput) (*models.AuditLog, error) {
	return s.record(ctx, s.repo, input)
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.AuditLog, error) {
	return s.record(ctx, s.repo.WithTx(tx), input)
}

func (s *service) record(ctx context.Context, repo Repository, input RecordEntryInput) (*models.AuditLog, error) {
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid audit action %q", input.Action)
	}
	if input.Entity == "" {
		return nil, fmt.Errorf("audit entity is required")
	}
	if input.Actor == "" {
		input.Actor = SystemActor
	}

	var payload json.RawMessage
	if input.Payload != nil {
		encoded, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode audit payload: %w", err)
		}
		payload = encoded
	}

	entry := &models.AuditLog{
		Action:   input.Action,
		Entity:   input.Entity,
		EntityID: input.EntityID,
		Actor:    input.Actor,
		Payload:  payload,
	}
	if err := repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditLog, error) {
	if entity == "" {
		return nil, fmt.Errorf("audit entity is required")
	}
	return s.repo.ListByEntity(ctx, entity, entityID)
}
