package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dextersy/label-dashboard-sub004/internal/clock"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

type Buyer struct {
	Name  string `validate:"required,max=200"`
	Email string `validate:"required,email,max=254"`
	Phone string `validate:"max=32"`
}

func normalizeBuyer(b Buyer) (Buyer, error) {
	b = Buyer{
		Name:  strings.TrimSpace(b.Name),
		Email: strings.ToLower(strings.TrimSpace(b.Email)),
		Phone: strings.TrimSpace(b.Phone),
	}
	if err := validate.Struct(b); err != nil {
		return Buyer{}, fmt.Errorf("%w: %v", ErrInvalidBuyer, err)
	}
	return b, nil
}

// FeePolicy computes the processing fee charged on top of the ticket subtotal.
type FeePolicy struct {
	Bps   int64 // basis points of the subtotal
	Fixed int64 // per order, minor units
}

// Fee splits the subtotal before applying the rate so large subtotals do
// not overflow; the result equals floor(subtotal*Bps/10000) + Fixed.
func (p FeePolicy) Fee(subtotal int64) (int64, error) {
	if subtotal <= 0 {
		return 0, nil
	}
	whole, err := models.LineTotal(subtotal/10000, int(p.Bps))
	if err != nil {
		return 0, err
	}
	fee, err := models.AddAmounts(whole, subtotal%10000*p.Bps/10000)
	if err != nil {
		return 0, err
	}
	return models.AddAmounts(fee, p.Fixed)
}

// DefaultMaxEntries applies when no per-order entry limit is configured.
const DefaultMaxEntries = 20

type CreateOrderInput struct {
	EventID      uint
	TicketTypeID uint
	Buyer        Buyer
	Count        int
	ReferrerCode string
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	GetOrderByCode(ctx context.Context, code string) (*models.Order, error)
	ListOrders(ctx context.Context, eventID uint, status *models.OrderStatus) ([]models.Order, error)
}

type orderService struct {
	store     repository.Store
	inventory InventoryService
	referrals ReferralService
	clock     clock.Clock
	fees       FeePolicy
	maxEntries int
	codes      CodeGenerator
}

// NewOrderService builds the order service. maxEntries caps the entries on
// a single order; zero or less means DefaultMaxEntries.
func NewOrderService(store repository.Store, inventory InventoryService, referrals ReferralService, clk clock.Clock, fees FeePolicy, maxEntries int) OrderService {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &orderService{
		store:      store,
		inventory:  inventory,
		referrals:  referrals,
		clock:      clk,
		fees:       fees,
		maxEntries: maxEntries,
		codes:      RandomCode,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.Count < 1 || in.Count > s.maxEntries {
		return nil, ErrInvalidCount
	}
	buyer, err := normalizeBuyer(in.Buyer)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	event, err := s.store.Events.FindByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, storeErr("find event", err)
	}
	if event.SaleClosed(now) {
		return nil, ErrSaleClosed
	}

	tt, err := s.store.TicketTypes.FindByID(ctx, in.TicketTypeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketTypeNotFound
		}
		return nil, storeErr("find ticket type", err)
	}
	if tt.EventID != event.ID {
		return nil, ErrTicketTypeNotFound
	}

	referrerCode := strings.TrimSpace(in.ReferrerCode)
	var referrerID *uint
	if referrerCode != "" && s.referrals != nil {
		referrerID = s.referrals.Attribute(ctx, event.ID, referrerCode)
	}

	order := &models.Order{
		EventID:      event.ID,
		TicketTypeID: tt.ID,
		BuyerName:    buyer.Name,
		BuyerEmail:   buyer.Email,
		BuyerPhone:   buyer.Phone,
		Purchased:    in.Count,
		ReferrerCode: referrerCode,
		ReferrerID:   referrerID,
		Status:       models.StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Reservation and insert commit together or not at all.
	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.inventory.Reserve(ctx, tt.ID, in.Count, now)
		if err != nil {
			return err
		}
		order.UnitPrice = res.UnitPrice
		fee, err := orderFee(s.fees, res.UnitPrice, in.Count)
		if err != nil {
			return err
		}
		order.ProcessingFee = fee
		return insertWithFreshCode(ctx, s.store, s.codes, order)
	})
	if err != nil {
		if errors.Is(err, ErrOutsideSaleWindow) {
			return nil, fmt.Errorf("%w: %w", ErrSaleClosed, err)
		}
		return nil, classify("create order", err)
	}
	s.inventory.InvalidateAvailability(ctx, order.EventID)

	log.Printf("[OrderService] order %s created: event=%d type=%d entries=%d total=%d",
		order.Code, order.EventID, order.TicketTypeID, order.Purchased, order.ExpectedTotal())
	return order, nil
}

// orderFee prices the order and rejects any count whose total leaves int64.
func orderFee(fees FeePolicy, unitPrice int64, count int) (int64, error) {
	subtotal, err := models.LineTotal(unitPrice, count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCount, err)
	}
	fee, err := fees.Fee(subtotal)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCount, err)
	}
	if _, err := models.AddAmounts(subtotal, fee); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCount, err)
	}
	return fee, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.store.Orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find order", err)
	}
	return order, nil
}

func (s *orderService) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	order, err := s.store.Orders.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find order", err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, eventID uint, status *models.OrderStatus) ([]models.Order, error) {
	orders, err := s.store.Orders.FindByEvent(ctx, eventID, status)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	return orders, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
