package service

import (
	"context"
	"errors"
	"log"

	"github.com/dextersy/label-dashboard-sub004/internal/clock"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"gorm.io/gorm"
)

const transferReason = "transferred"

type TransferService interface {
	Transfer(ctx context.Context, orderID uint, to Buyer) (*models.Order, error)
}

type transferService struct {
	store    repository.Store
	notifier Notifier
	clock    clock.Clock
	codes    CodeGenerator
}

func NewTransferService(store repository.Store, notifier Notifier, clk clock.Clock) TransferService {
	return &transferService{
		store:    store,
		notifier: notifier,
		clock:    clk,
		codes:    RandomCode,
	}
}

// Transfer cancels an unredeemed, sent ticket and reissues its entries to a
// new buyer under a fresh code. The ticket type's sold count is not touched.
func (s *transferService) Transfer(ctx context.Context, orderID uint, to Buyer) (*models.Order, error) {
	buyer, err := normalizeBuyer(to)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var source, target *models.Order

	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		src, err := s.store.Orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return storeErr("lock order", err)
		}
		if src.Status != models.StatusTicketSent || src.Claimed != 0 {
			return ErrNotTransferable
		}

		ok, err := s.store.Orders.CancelUnclaimed(ctx, src.ID, models.StatusTicketSent, map[string]any{
			"cancel_reason": transferReason,
			"canceled_at":   now,
		})
		if err != nil {
			return storeErr("cancel source order", err)
		}
		if !ok {
			return ErrNotTransferable
		}

		next := &models.Order{
			EventID:       src.EventID,
			TicketTypeID:  src.TicketTypeID,
			BuyerName:     buyer.Name,
			BuyerEmail:    buyer.Email,
			BuyerPhone:    buyer.Phone,
			Purchased:     src.Purchased,
			UnitPrice:     src.UnitPrice,
			ProcessingFee: src.ProcessingFee,
			ReferrerCode:  src.ReferrerCode,
			ReferrerID:    src.ReferrerID,
			Status:        models.StatusTicketSent,
			SupersedesID:  &src.ID,
			CreatedAt:     now,
			UpdatedAt:     now,
			PaidAt:        src.PaidAt,
			TicketSentAt:  &now,
		}
		if err := insertWithFreshCode(ctx, s.store, s.codes, next); err != nil {
			return err
		}
		if err := s.store.Orders.LinkSuccessor(ctx, src.ID, next.ID); err != nil {
			return storeErr("link transfer", err)
		}

		src.Status = models.StatusCanceled
		src.CancelReason = transferReason
		src.CanceledAt = &now
		src.SupersededByID = &next.ID
		source, target = src, next
		return nil
	})
	if err != nil {
		return nil, classify("transfer", err)
	}

	log.Printf("[Transfer] ticket %s reissued as %s (%d entries)", source.Code, target.Code, target.Purchased)
	notify(ctx, s.notifier, notificationFor(source, TemplateTicketCanceled, transferReason))
	notify(ctx, s.notifier, notificationFor(target, TemplateTicketIssued, ""))
	return target, nil
}
