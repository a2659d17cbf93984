package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uint) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*models.Order, error)
	FindByCode(ctx context.Context, code string) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*models.Order, error)
	FindByEvent(ctx context.Context, eventID uint, status *models.OrderStatus) ([]models.Order, error)
	FindStale(ctx context.Context, status models.OrderStatus, before time.Time, limit int) ([]models.Order, error)
	Transition(ctx context.Context, id uint, from, to models.OrderStatus, fields map[string]any) (bool, error)
	CancelUnclaimed(ctx context.Context, id uint, from models.OrderStatus, fields map[string]any) (bool, error)
	SetPaymentReference(ctx context.Context, id uint, ref string) (bool, error)
	IncrementClaimed(ctx context.Context, id uint, n int, at time.Time) (claimed int, ok bool, err error)
	ClaimIssuance(ctx context.Context, id uint, now, staleBefore time.Time) (bool, error)
	LinkSuccessor(ctx context.Context, id, successorID uint) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts the order. Unique violations on the ticket code or the
// payment reference come back as ErrDuplicateCode / ErrDuplicatePaymentReference.
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	err := conn(ctx, r.db).Omit(clause.Associations).Create(order).Error
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, orderCodeIndex):
		return ErrDuplicateCode
	case isUniqueViolation(err, orderPaymentReferenceIndex):
		return ErrDuplicatePaymentReference
	default:
		return err
	}
}

func (r *orderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := conn(ctx, r.db).Preload("TicketType").First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate acquires a row-level lock on the order within the
// transaction carried by ctx.
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	if err := conn(ctx, r.db).Preload("TicketType").Where("code = ?", code).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	if err := conn(ctx, r.db).Where("payment_reference = ?", ref).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByEvent(ctx context.Context, eventID uint, status *models.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	q := conn(ctx, r.db).Preload("TicketType").Where("event_id = ?", eventID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.Order("id ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindStale returns orders that have sat in status since before, oldest first.
func (r *orderRepository) FindStale(ctx context.Context, status models.OrderStatus, before time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	col := "created_at"
	if status == models.StatusPaymentConfirmed {
		col = "paid_at"
	}
	err := conn(ctx, r.db).
		Where(fmt.Sprintf("status = ? AND %s < ?", col), status, before).
		Order(col + " ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Transition moves the order from one status to another only if it is still
// in from. It reports false when another writer got there first.
func (r *orderRepository) Transition(ctx context.Context, id uint, from, to models.OrderStatus, fields map[string]any) (bool, error) {
	if err := models.CheckTransition(from, to); err != nil {
		return false, err
	}
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := conn(ctx, r.db).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		if isUniqueViolation(res.Error, orderPaymentReferenceIndex) {
			return false, ErrDuplicatePaymentReference
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClaimIssuance takes the dispatch lease on a payment_confirmed order. Only
// one caller wins until the lease goes stale at staleBefore.
func (r *orderRepository) ClaimIssuance(ctx context.Context, id uint, now, staleBefore time.Time) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND (issuing_at IS NULL OR issuing_at < ?)",
			id, models.StatusPaymentConfirmed, staleBefore).
		UpdateColumn("issuing_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelUnclaimed is Transition to canceled with the extra guard that no
// entry has been redeemed.
func (r *orderRepository) CancelUnclaimed(ctx context.Context, id uint, from models.OrderStatus, fields map[string]any) (bool, error) {
	if err := models.CheckTransition(from, models.StatusCanceled); err != nil {
		return false, err
	}
	updates := map[string]any{"status": models.StatusCanceled}
	for k, v := range fields {
		updates[k] = v
	}
	res := conn(ctx, r.db).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND claimed = 0", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPaymentReference records the provider checkout reference on an unpaid order.
func (r *orderRepository) SetPaymentReference(ctx context.Context, id uint, ref string) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.StatusNew).
		Update("payment_reference", ref)
	if res.Error != nil {
		if isUniqueViolation(res.Error, orderPaymentReferenceIndex) {
			return false, ErrDuplicatePaymentReference
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementClaimed admits n entries in one conditional statement and returns
// the claimed count it produced. Concurrent callers are serialized by the row
// lock the UPDATE takes and the bound is re-evaluated against the committed
// value, so claimed never passes purchased.
func (r *orderRepository) IncrementClaimed(ctx context.Context, id uint, n int, at time.Time) (int, bool, error) {
	order := models.Order{ID: id}
	res := conn(ctx, r.db).
		Model(&order).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "claimed"}}}).
		Where("status = ? AND claimed + ? <= purchased", models.StatusTicketSent, n).
		Updates(map[string]any{
			"claimed":           gorm.Expr("claimed + ?", n),
			"first_redeemed_at": gorm.Expr("COALESCE(first_redeemed_at, ?)", at),
			"last_redeemed_at":  at,
		})
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected != 1 {
		return 0, false, nil
	}
	return order.Claimed, true, nil
}

func (r *orderRepository) LinkSuccessor(ctx context.Context, id, successorID uint) error {
	return conn(ctx, r.db).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("superseded_by_id", successorID).Error
}
