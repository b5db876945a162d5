package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mycareerbox/internal/model"
)

type RecordEventRepository struct {
	db *gorm.DB
}

func NewRecordEventRepository(db *gorm.DB) *RecordEventRepository {
	return &RecordEventRepository{db: db}
}

func (r *RecordEventRepository) Create(ctx context.Context, event *model.RecordEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create record event failed: %w", err)
	}
	return nil
}

// ListByUser returns the newest events first.
func (r *RecordEventRepository) ListByUser(ctx context.Context, email string, limit int) ([]model.RecordEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []model.RecordEvent
	if err := r.db.WithContext(ctx).
		Where("user_email = ?", email).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list record events failed: %w", err)
	}
	return events, nil
}
