package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/clock"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"gorm.io/gorm"
)

// Reservation is the proof that count entries of a ticket type were taken
// out of capacity at the given unit price.
type Reservation struct {
	TicketTypeID uint
	EventID      uint
	Count        int
	UnitPrice    int64
}

type TicketTypeAvailability struct {
	TicketTypeID uint   `json:"ticket_type_id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Capacity     int    `json:"capacity"`
	Sold         int    `json:"sold"`
	Remaining    *int   `json:"remaining"`
	SoldOut      bool   `json:"is_sold_out"`
	OnSale       bool   `json:"on_sale"`
}

// AvailabilityCache holds per-event availability for the public listing.
// A nil cache is allowed.
type AvailabilityCache interface {
	Get(ctx context.Context, eventID uint) ([]TicketTypeAvailability, bool)
	Set(ctx context.Context, eventID uint, items []TicketTypeAvailability)
	Invalidate(ctx context.Context, eventID uint)
}

type InventoryService interface {
	Reserve(ctx context.Context, ticketTypeID uint, count int, at time.Time) (*Reservation, error)
	Release(ctx context.Context, ticketTypeID uint, count int) error
	IsAvailable(ctx context.Context, ticketTypeID uint, at time.Time) (bool, error)
	Availability(ctx context.Context, eventID uint) ([]TicketTypeAvailability, error)
	// InvalidateAvailability drops the cached listing for an event. Callers
	// run it after the transaction that changed sold has committed.
	InvalidateAvailability(ctx context.Context, eventID uint)
}

type inventoryService struct {
	types repository.TicketTypeRepository
	cache AvailabilityCache
	clock clock.Clock
}

func NewInventoryService(types repository.TicketTypeRepository, cache AvailabilityCache, clk clock.Clock) InventoryService {
	return &inventoryService{types: types, cache: cache, clock: clk}
}

func (s *inventoryService) Reserve(ctx context.Context, ticketTypeID uint, count int, at time.Time) (*Reservation, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	tt, err := s.find(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}
	if tt.Disabled {
		return nil, ErrTicketTypeDisabled
	}
	if !tt.InWindow(at) {
		return nil, ErrOutsideSaleWindow
	}

	ok, err := s.types.IncrementSold(ctx, ticketTypeID, count)
	if err != nil {
		return nil, storeErr("reserve", err)
	}
	if !ok {
		// Lost on the bound. Re-read only to tell the caller why.
		cur, err := s.find(ctx, ticketTypeID)
		if err != nil {
			return nil, err
		}
		if cur.Disabled {
			return nil, ErrTicketTypeDisabled
		}
		return nil, ErrCapacityExceeded
	}

	return &Reservation{
		TicketTypeID: tt.ID,
		EventID:      tt.EventID,
		Count:        count,
		UnitPrice:    tt.Price,
	}, nil
}

func (s *inventoryService) Release(ctx context.Context, ticketTypeID uint, count int) error {
	if count < 1 {
		return ErrInvalidCount
	}

	tt, err := s.find(ctx, ticketTypeID)
	if err != nil {
		return err
	}

	ok, err := s.types.DecrementSold(ctx, ticketTypeID, count)
	if err != nil {
		return storeErr("release", err)
	}
	if !ok {
		log.Printf("[Inventory] release of %d on ticket type %d skipped: sold is %d", count, ticketTypeID, tt.Sold)
	}
	return nil
}

func (s *inventoryService) IsAvailable(ctx context.Context, ticketTypeID uint, at time.Time) (bool, error) {
	tt, err := s.find(ctx, ticketTypeID)
	if err != nil {
		return false, err
	}
	return !tt.Disabled && tt.InWindow(at) && !tt.SoldOut(), nil
}

func (s *inventoryService) Availability(ctx context.Context, eventID uint) ([]TicketTypeAvailability, error) {
	if s.cache != nil {
		if items, ok := s.cache.Get(ctx, eventID); ok {
			return items, nil
		}
	}

	types, err := s.types.FindByEvent(ctx, eventID)
	if err != nil {
		return nil, storeErr("availability", err)
	}

	now := s.clock.Now()
	items := make([]TicketTypeAvailability, len(types))
	for i := range types {
		tt := &types[i]
		items[i] = TicketTypeAvailability{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Price:        tt.Price,
			Capacity:     tt.Capacity,
			Sold:         tt.Sold,
			Remaining:    tt.Remaining(),
			SoldOut:      tt.SoldOut(),
			OnSale:       !tt.Disabled && tt.InWindow(now) && !tt.SoldOut(),
		}
	}

	if s.cache != nil {
		s.cache.Set(ctx, eventID, items)
	}
	return items, nil
}

func (s *inventoryService) find(ctx context.Context, id uint) (*models.TicketType, error) {
	tt, err := s.types.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketTypeNotFound
		}
		return nil, storeErr("find ticket type", err)
	}
	return tt, nil
}

func (s *inventoryService) InvalidateAvailability(ctx context.Context, eventID uint) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, eventID)
	}
}
