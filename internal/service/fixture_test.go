package service

import (
	"context"
	"testing"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"github.com/stretchr/testify/require"
)

var (
	t0         = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	testSecret = []byte("test-checkin-secret")
	testFees   = FeePolicy{Bps: 500, Fixed: 1000}
	alice      = Buyer{Name: "Alice Reyes", Email: "alice@example.com", Phone: "+63 917 000 0001"}
	bob        = Buyer{Name: "Bob Santos", Email: "bob@example.com"}
	testPIN    = "4821"
	sessionTTL = 12 * time.Hour
	issueRetry = 2 * time.Minute
	pendingTTL = 30 * time.Minute
	sweepBatch = 50

	testMaxEntries = 10
)

type fixture struct {
	db        *fakeDB
	store     repository.Store
	clock     *testClock
	notifier  *fakeNotifier
	inventory InventoryService
	orders    *orderService
	payments  PaymentService
	checkin   CheckInService
	transfers *transferService

	event *models.Event
	ga    *models.TicketType // capacity 100, price 150000
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newFakeDB()
	store := db.store()
	clk := newTestClock(t0)
	notifier := &fakeNotifier{}
	inventory := NewInventoryService(store.TicketTypes, nil, clk)

	f := &fixture{
		db:        db,
		store:     store,
		clock:     clk,
		notifier:  notifier,
		inventory: inventory,
		orders:    NewOrderService(store, inventory, NewReferralService(store.Referrers), clk, testFees, testMaxEntries).(*orderService),
		payments:  NewPaymentService(store, inventory, notifier, clk),
		checkin:   NewCheckInService(store, testSecret, sessionTTL, clk),
		transfers: NewTransferService(store, notifier, clk).(*transferService),
	}

	closes := t0.Add(48 * time.Hour)
	f.event = db.addEvent(models.Event{Name: "Sunset Sessions", CloseTime: &closes, VerificationPIN: testPIN})
	f.ga = db.addTicketType(models.TicketType{EventID: f.event.ID, Name: "General Admission", Price: 150000, Capacity: 100})
	return f
}

func (f *fixture) ticketType(capacity int) *models.TicketType {
	return f.db.addTicketType(models.TicketType{EventID: f.event.ID, Name: "Limited", Price: 90000, Capacity: capacity})
}

// sentOrder seeds an order that is paid and issued, with sold already
// accounted on its ticket type.
func (f *fixture) sentOrder(code string, purchased, claimed int) *models.Order {
	tt := f.db.ticketType(f.ga.ID)
	tt.Sold += purchased
	f.db.addTicketType(tt)

	paid := t0.Add(-time.Hour)
	ref := "pay_" + code
	return f.db.addOrder(models.Order{
		Code:             code,
		EventID:          f.event.ID,
		TicketTypeID:     f.ga.ID,
		BuyerName:        alice.Name,
		BuyerEmail:       alice.Email,
		Purchased:        purchased,
		Claimed:          claimed,
		UnitPrice:        f.ga.Price,
		Status:           models.StatusTicketSent,
		PaymentReference: &ref,
		PaidAmount:       f.ga.Price * int64(purchased),
		CreatedAt:        paid,
		PaidAt:           &paid,
		TicketSentAt:     &paid,
	})
}

func (f *fixture) newOrder(t *testing.T, count int) *models.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		EventID:      f.event.ID,
		TicketTypeID: f.ga.ID,
		Buyer:        alice,
		Count:        count,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	s, err := f.checkin.Authenticate(context.Background(), f.event.ID, testPIN)
	require.NoError(t, err)
	return s.Token
}
