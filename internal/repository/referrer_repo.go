package repository

import (
	"context"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferrerRepository interface {
	FindByCode(ctx context.Context, eventID uint, code string) (*models.Referrer, error)
	Upsert(ctx context.Context, ref *models.Referrer) error
}

type referrerRepository struct {
	db *gorm.DB
}

func NewReferrerRepository(db *gorm.DB) ReferrerRepository {
	return &referrerRepository{db: db}
}

// FindByCode matches codes case-insensitively within one event.
func (r *referrerRepository) FindByCode(ctx context.Context, eventID uint, code string) (*models.Referrer, error) {
	var ref models.Referrer
	err := conn(ctx, r.db).
		Where("event_id = ? AND LOWER(code) = LOWER(?)", eventID, code).
		First(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *referrerRepository) Upsert(ctx context.Context, ref *models.Referrer) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_id", "name", "code", "updated_at"}),
	}).Create(ref).Error
}
