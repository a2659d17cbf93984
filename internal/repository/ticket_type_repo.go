package repository

import (
	"context"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TicketTypeRepository interface {
	FindByID(ctx context.Context, id uint) (*models.TicketType, error)
	FindByEvent(ctx context.Context, eventID uint) ([]models.TicketType, error)
	IncrementSold(ctx context.Context, id uint, n int) (bool, error)
	DecrementSold(ctx context.Context, id uint, n int) (bool, error)
	Upsert(ctx context.Context, tt *models.TicketType) error
}

type ticketTypeRepository struct {
	db *gorm.DB
}

func NewTicketTypeRepository(db *gorm.DB) TicketTypeRepository {
	return &ticketTypeRepository{db: db}
}

func (r *ticketTypeRepository) FindByID(ctx context.Context, id uint) (*models.TicketType, error) {
	var tt models.TicketType
	if err := conn(ctx, r.db).First(&tt, id).Error; err != nil {
		return nil, err
	}
	return &tt, nil
}

func (r *ticketTypeRepository) FindByEvent(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	var types []models.TicketType
	if err := conn(ctx, r.db).Where("event_id = ?", eventID).Order("id ASC").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

// IncrementSold adds n to sold in a single conditional statement. It reports
// false when the type is disabled or the increment would pass capacity; the
// row is left untouched in that case.
func (r *ticketTypeRepository) IncrementSold(ctx context.Context, id uint, n int) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.TicketType{}).
		Where("id = ? AND disabled = ? AND (capacity = 0 OR sold + ? <= capacity)", id, false, n).
		UpdateColumn("sold", gorm.Expr("sold + ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecrementSold never takes sold below zero.
func (r *ticketTypeRepository) DecrementSold(ctx context.Context, id uint, n int) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.TicketType{}).
		Where("id = ? AND sold >= ?", id, n).
		UpdateColumn("sold", gorm.Expr("sold - ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Upsert syncs admin-owned fields. sold is owned by this service and is
// never overwritten; a bounded capacity never drops below it.
func (r *ticketTypeRepository) Upsert(ctx context.Context, tt *models.TicketType) error {
	updates := clause.AssignmentColumns([]string{
		"event_id", "name", "price", "sale_start_at", "sale_end_at", "disabled", "updated_at",
	})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "capacity"},
		Value: gorm.Expr("CASE WHEN excluded.capacity = 0 THEN 0 " +
			"ELSE GREATEST(excluded.capacity, ticket_types.sold) END"),
	})
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: updates,
	}).Omit("sold").Create(tt).Error
}
