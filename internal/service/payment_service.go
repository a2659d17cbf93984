package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/clock"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"gorm.io/gorm"
)

const maxReferenceLength = 128

// issueLease is how long one dispatch attempt holds an order before another
// sweep may try again.
const issueLease = time.Minute

// PaymentNotification is one delivery from the payment provider. The same
// notification may arrive more than once.
type PaymentNotification struct {
	ProviderReference string
	OrderReference    string // ticket code, used when the reference was never attached
	Amount            int64
}

type ConfirmResult struct {
	Order     *models.Order
	Duplicate bool // already confirmed under this reference, nothing applied
	Issued    bool // the ticket went out during this call
}

type PaymentService interface {
	AttachPaymentReference(ctx context.Context, orderID uint, ref string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, n PaymentNotification) (*ConfirmResult, error)
	FailPayment(ctx context.Context, n PaymentNotification, reason string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uint, reason string) (*models.Order, error)
	RetryIssuance(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type paymentService struct {
	store     repository.Store
	inventory InventoryService
	notifier  Notifier
	clock     clock.Clock
}

func NewPaymentService(store repository.Store, inventory InventoryService, notifier Notifier, clk clock.Clock) PaymentService {
	return &paymentService{
		store:     store,
		inventory: inventory,
		notifier:  notifier,
		clock:     clk,
	}
}

func (s *paymentService) AttachPaymentReference(ctx context.Context, orderID uint, ref string) (*models.Order, error) {
	ref, err := cleanReference(ref)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.Orders.SetPaymentReference(ctx, orderID, ref)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentReference) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidReference, err)
		}
		return nil, storeErr("attach payment reference", err)
	}

	order, err := s.findByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPayable
	}
	return order, nil
}

func (s *paymentService) ConfirmPayment(ctx context.Context, n PaymentNotification) (*ConfirmResult, error) {
	ref, err := cleanReference(n.ProviderReference)
	if err != nil {
		return nil, err
	}

	order, err := s.findForNotification(ctx, ref, n.OrderReference)
	if err != nil {
		return nil, err
	}

	if res, done, err := s.settled(order, ref); done {
		return res, err
	}

	now := s.clock.Now()
	mismatch := n.Amount != order.ExpectedTotal()
	if mismatch {
		log.Printf("[PaymentService] amount mismatch on order %s: expected %d, provider reported %d (ref %s)",
			order.Code, order.ExpectedTotal(), n.Amount, ref)
	}
	if order.PaymentReference != nil && *order.PaymentReference != ref {
		log.Printf("[PaymentService] order %s was attached to %s but paid under %s",
			order.Code, *order.PaymentReference, ref)
	}

	ok, err := s.store.Orders.Transition(ctx, order.ID, models.StatusNew, models.StatusPaymentConfirmed, map[string]any{
		"payment_reference": ref,
		"paid_amount":       n.Amount,
		"amount_mismatch":   mismatch,
		"paid_at":           now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentReference) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidReference, err)
		}
		return nil, storeErr("confirm payment", err)
	}
	if !ok {
		// A concurrent delivery or a cancellation got there first.
		cur, err := s.findByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		res, _, err := s.settled(cur, ref)
		return res, err
	}

	order.Status = models.StatusPaymentConfirmed
	order.PaymentReference = &ref
	order.PaidAmount = n.Amount
	order.AmountMismatch = mismatch
	order.PaidAt = &now
	log.Printf("[PaymentService] order %s confirmed (ref %s, amount %d)", order.Code, ref, n.Amount)

	issued := s.issue(ctx, order)
	return &ConfirmResult{Order: order, Issued: issued}, nil
}

// settled reports the outcome for an order that is no longer waiting for
// payment. done is false when the order is still new.
func (s *paymentService) settled(order *models.Order, ref string) (*ConfirmResult, bool, error) {
	switch {
	case order.Status.Paid():
		if order.PaymentReference == nil || *order.PaymentReference != ref {
			log.Printf("[PaymentService] order %s already paid, ignoring confirmation under %s", order.Code, ref)
		}
		return &ConfirmResult{Order: order, Duplicate: true}, true, nil
	case order.Status == models.StatusCanceled:
		log.Printf("[PaymentService] confirmation %s for canceled order %s", ref, order.Code)
		return nil, true, ErrNotPayable
	}
	return nil, false, nil
}

func (s *paymentService) FailPayment(ctx context.Context, n PaymentNotification, reason string) (*models.Order, error) {
	ref, err := cleanReference(n.ProviderReference)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "payment failed"
	}

	order, err := s.findForNotification(ctx, ref, n.OrderReference)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.StatusCanceled:
		return order, nil
	case models.StatusPaymentConfirmed, models.StatusTicketSent:
		log.Printf("[PaymentService] ignoring failure %s (%s) for paid order %s", ref, reason, order.Code)
		return order, nil
	}

	canceled, err := s.cancel(ctx, order, reason)
	if err != nil {
		return nil, err
	}
	if !canceled {
		return s.findByID(ctx, order.ID)
	}
	log.Printf("[PaymentService] order %s canceled: %s (ref %s)", order.Code, reason, ref)
	return order, nil
}

func (s *paymentService) CancelOrder(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	order, err := s.findByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.StatusCanceled || order.Claimed > 0 {
		return nil, ErrNotCancelable
	}
	if strings.TrimSpace(reason) == "" {
		reason = "canceled by organizer"
	}

	wasSent := order.Status == models.StatusTicketSent
	canceled, err := s.cancel(ctx, order, reason)
	if err != nil {
		return nil, err
	}
	if !canceled {
		return nil, ErrNotCancelable
	}

	log.Printf("[PaymentService] order %s canceled by organizer: %s", order.Code, reason)
	if wasSent {
		notify(ctx, s.notifier, notificationFor(order, TemplateTicketCanceled, reason))
	}
	return order, nil
}

func (s *paymentService) RetryIssuance(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	orders, err := s.store.Orders.FindStale(ctx, models.StatusPaymentConfirmed, s.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, storeErr("find unissued orders", err)
	}

	issued := 0
	for i := range orders {
		if s.issue(ctx, &orders[i]) {
			issued++
		}
	}
	return issued, nil
}

func (s *paymentService) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	orders, err := s.store.Orders.FindStale(ctx, models.StatusNew, s.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, storeErr("find stale orders", err)
	}

	var errs []error
	expired := 0
	for i := range orders {
		canceled, err := s.cancel(ctx, &orders[i], "payment timeout")
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", orders[i].Code, err))
			continue
		}
		if canceled {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

// issue takes the dispatch lease, sends the ticket, then marks it sent. A
// failed dispatch leaves the order payment_confirmed for RetryIssuance once
// the lease lapses.
func (s *paymentService) issue(ctx context.Context, order *models.Order) bool {
	claimedAt := s.clock.Now()
	leased, err := s.store.Orders.ClaimIssuance(ctx, order.ID, claimedAt, claimedAt.Add(-issueLease))
	if err != nil {
		log.Printf("[PaymentService] ticket %s: issuance lease not taken: %v", order.Code, err)
		return false
	}
	if !leased {
		return false
	}

	if err := send(ctx, s.notifier, notificationFor(order, TemplateTicketIssued, "")); err != nil {
		log.Printf("[PaymentService] ticket %s not dispatched, will retry: %v", order.Code, err)
		return false
	}

	now := s.clock.Now()
	ok, err := s.store.Orders.Transition(ctx, order.ID, models.StatusPaymentConfirmed, models.StatusTicketSent, map[string]any{
		"ticket_sent_at": now,
	})
	if err != nil {
		log.Printf("[PaymentService] ticket %s dispatched but not marked sent: %v", order.Code, err)
		return false
	}
	if !ok {
		return false
	}

	order.Status = models.StatusTicketSent
	order.TicketSentAt = &now
	return true
}

// cancel moves an unclaimed order to canceled and gives its entries back to
// the ticket type in one transaction. It reports false when the order had
// already moved on.
func (s *paymentService) cancel(ctx context.Context, order *models.Order, reason string) (bool, error) {
	now := s.clock.Now()
	from := order.Status
	canceled := false

	err := s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.Orders.CancelUnclaimed(ctx, order.ID, from, map[string]any{
			"cancel_reason": reason,
			"canceled_at":   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		canceled = true
		return s.inventory.Release(ctx, order.TicketTypeID, order.Purchased)
	})
	if err != nil {
		return false, classify("cancel order", err)
	}
	if !canceled {
		return false, nil
	}
	s.inventory.InvalidateAvailability(ctx, order.EventID)

	order.Status = models.StatusCanceled
	order.CancelReason = reason
	order.CanceledAt = &now
	return true, nil
}

func (s *paymentService) findForNotification(ctx context.Context, ref, orderRef string) (*models.Order, error) {
	order, err := s.store.Orders.FindByPaymentReference(ctx, ref)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeErr("find order by reference", err)
	}

	code := normalizeCode(orderRef)
	if code == "" {
		return nil, ErrNotFound
	}
	order, err = s.store.Orders.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find order", err)
	}
	return order, nil
}

func (s *paymentService) findByID(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.store.Orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find order", err)
	}
	return order, nil
}

func cleanReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || len(ref) > maxReferenceLength {
		return "", ErrInvalidReference
	}
	return ref, nil
}
