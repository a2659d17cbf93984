package repository

import (
	"context"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Event, error)
	Upsert(ctx context.Context, event *models.Event) error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) FindByID(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	if err := conn(ctx, r.db).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Upsert inserts or refreshes an event synced from the admin side.
func (r *eventRepository) Upsert(ctx context.Context, event *models.Event) error {
	return conn(ctx, r.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "close_time", "verification_pin", "updated_at"}),
		}).Create(event).Error
}
