package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"gorm.io/gorm"
)

// fakeDB is an in-memory stand-in for Postgres. Every conditional update
// runs under one mutex, the same way the real statements are serialized by
// row locks. A transaction holds the mutex from begin to commit and rolls
// back by restoring a snapshot; nested transactions act as savepoints.
type fakeDB struct {
	mu     sync.Mutex
	nextID uint
	data   fakeData

	// failCreate, when set, is returned by the next Orders.Create.
	failCreate error
	// claimCalls counts Orders.IncrementClaimed invocations.
	claimCalls int
}

type fakeData struct {
	events    map[uint]models.Event
	types     map[uint]models.TicketType
	orders    map[uint]models.Order
	referrers map[uint]models.Referrer
}

func (d fakeData) clone() fakeData {
	c := fakeData{
		events:    make(map[uint]models.Event, len(d.events)),
		types:     make(map[uint]models.TicketType, len(d.types)),
		orders:    make(map[uint]models.Order, len(d.orders)),
		referrers: make(map[uint]models.Referrer, len(d.referrers)),
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.types {
		c.types[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.referrers {
		c.referrers[k] = v
	}
	return c
}

type fakeTxKey struct{}

func newFakeDB() *fakeDB {
	return &fakeDB{
		nextID: 100,
		data: fakeData{
			events:    map[uint]models.Event{},
			types:     map[uint]models.TicketType{},
			orders:    map[uint]models.Order{},
			referrers: map[uint]models.Referrer{},
		},
	}
}

func (db *fakeDB) store() repository.Store {
	return repository.Store{
		Tx:          fakeTx{db},
		Events:      fakeEvents{db},
		TicketTypes: fakeTicketTypes{db},
		Orders:      fakeOrders{db},
		Referrers:   fakeReferrers{db},
	}
}

// lock takes the mutex unless ctx is already inside a transaction.
func (db *fakeDB) lock(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *fakeDB) id() uint {
	db.nextID++
	return db.nextID
}

// seeding and inspection helpers, used outside transactions

func (db *fakeDB) addEvent(e models.Event) *models.Event {
	db.mu.Lock()
	defer db.mu.Unlock()
	if e.ID == 0 {
		e.ID = db.id()
	}
	db.data.events[e.ID] = e
	return &e
}

func (db *fakeDB) addTicketType(t models.TicketType) *models.TicketType {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t.ID == 0 {
		t.ID = db.id()
	}
	db.data.types[t.ID] = t
	return &t
}

func (db *fakeDB) addReferrer(r models.Referrer) *models.Referrer {
	db.mu.Lock()
	defer db.mu.Unlock()
	if r.ID == 0 {
		r.ID = db.id()
	}
	db.data.referrers[r.ID] = r
	return &r
}

func (db *fakeDB) addOrder(o models.Order) *models.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	if o.ID == 0 {
		o.ID = db.id()
	}
	db.data.orders[o.ID] = o
	return &o
}

func (db *fakeDB) setPIN(eventID uint, pin string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e := db.data.events[eventID]
	e.VerificationPIN = pin
	db.data.events[eventID] = e
}

func (db *fakeDB) ticketType(id uint) models.TicketType {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.data.types[id]
}

func (db *fakeDB) order(id uint) models.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.data.orders[id]
}

func (db *fakeDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.data.orders)
}

// TxManager

type fakeTx struct{ db *fakeDB }

func (t fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		saved := t.db.data.clone()
		if err := fn(ctx); err != nil {
			t.db.data = saved
			return err
		}
		return nil
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	saved := t.db.data.clone()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		t.db.data = saved
		return err
	}
	return nil
}

// EventRepository

type fakeEvents struct{ db *fakeDB }

func (r fakeEvents) FindByID(ctx context.Context, id uint) (*models.Event, error) {
	defer r.db.lock(ctx)()
	e, ok := r.db.data.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (r fakeEvents) Upsert(ctx context.Context, e *models.Event) error {
	defer r.db.lock(ctx)()
	r.db.data.events[e.ID] = *e
	return nil
}

// TicketTypeRepository

type fakeTicketTypes struct{ db *fakeDB }

func (r fakeTicketTypes) FindByID(ctx context.Context, id uint) (*models.TicketType, error) {
	defer r.db.lock(ctx)()
	t, ok := r.db.data.types[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r fakeTicketTypes) FindByEvent(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	defer r.db.lock(ctx)()
	var out []models.TicketType
	for _, t := range r.db.data.types {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeTicketTypes) IncrementSold(ctx context.Context, id uint, n int) (bool, error) {
	defer r.db.lock(ctx)()
	t, ok := r.db.data.types[id]
	if !ok || t.Disabled || (t.Capacity > 0 && t.Sold+n > t.Capacity) {
		return false, nil
	}
	t.Sold += n
	r.db.data.types[id] = t
	return true, nil
}

func (r fakeTicketTypes) DecrementSold(ctx context.Context, id uint, n int) (bool, error) {
	defer r.db.lock(ctx)()
	t, ok := r.db.data.types[id]
	if !ok || t.Sold < n {
		return false, nil
	}
	t.Sold -= n
	r.db.data.types[id] = t
	return true, nil
}

func (r fakeTicketTypes) Upsert(ctx context.Context, t *models.TicketType) error {
	defer r.db.lock(ctx)()
	if cur, ok := r.db.data.types[t.ID]; ok {
		t.Sold = cur.Sold
	}
	r.db.data.types[t.ID] = *t
	return nil
}

// ReferrerRepository

type fakeReferrers struct{ db *fakeDB }

func (r fakeReferrers) FindByCode(ctx context.Context, eventID uint, code string) (*models.Referrer, error) {
	defer r.db.lock(ctx)()
	for _, ref := range r.db.data.referrers {
		if ref.EventID == eventID && strings.EqualFold(ref.Code, code) {
			return &ref, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeReferrers) Upsert(ctx context.Context, ref *models.Referrer) error {
	defer r.db.lock(ctx)()
	r.db.data.referrers[ref.ID] = *ref
	return nil
}

// OrderRepository

type fakeOrders struct{ db *fakeDB }

func (r fakeOrders) withType(o models.Order) *models.Order {
	if t, ok := r.db.data.types[o.TicketTypeID]; ok {
		o.TicketType = &t
	}
	return &o
}

func (r fakeOrders) Create(ctx context.Context, o *models.Order) error {
	defer r.db.lock(ctx)()
	if err := r.db.failCreate; err != nil {
		r.db.failCreate = nil
		return err
	}
	for _, cur := range r.db.data.orders {
		if cur.Code == o.Code {
			return repository.ErrDuplicateCode
		}
		if o.PaymentReference != nil && cur.PaymentReference != nil && *cur.PaymentReference == *o.PaymentReference {
			return repository.ErrDuplicatePaymentReference
		}
	}
	o.ID = r.db.id()
	stored := *o
	stored.TicketType = nil
	r.db.data.orders[o.ID] = stored
	return nil
}

func (r fakeOrders) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	defer r.db.lock(ctx)()
	o, ok := r.db.data.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.withType(o), nil
}

func (r fakeOrders) FindByIDForUpdate(ctx context.Context, id uint) (*models.Order, error) {
	defer r.db.lock(ctx)()
	o, ok := r.db.data.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &o, nil
}

func (r fakeOrders) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	defer r.db.lock(ctx)()
	for _, o := range r.db.data.orders {
		if o.Code == code {
			return r.withType(o), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeOrders) FindByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	defer r.db.lock(ctx)()
	for _, o := range r.db.data.orders {
		if o.PaymentReference != nil && *o.PaymentReference == ref {
			return &o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeOrders) FindByEvent(ctx context.Context, eventID uint, status *models.OrderStatus) ([]models.Order, error) {
	defer r.db.lock(ctx)()
	var out []models.Order
	for _, o := range r.db.data.orders {
		if o.EventID == eventID && (status == nil || o.Status == *status) {
			out = append(out, *r.withType(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeOrders) FindStale(ctx context.Context, status models.OrderStatus, before time.Time, limit int) ([]models.Order, error) {
	defer r.db.lock(ctx)()
	var out []models.Order
	for _, o := range r.db.data.orders {
		if o.Status != status {
			continue
		}
		since := o.CreatedAt
		if status == models.StatusPaymentConfirmed && o.PaidAt != nil {
			since = *o.PaidAt
		}
		if since.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeOrders) Transition(ctx context.Context, id uint, from, to models.OrderStatus, fields map[string]any) (bool, error) {
	if err := models.CheckTransition(from, to); err != nil {
		return false, err
	}
	defer r.db.lock(ctx)()
	o, ok := r.db.data.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	if ref, ok := fields["payment_reference"].(string); ok {
		for _, cur := range r.db.data.orders {
			if cur.ID != id && cur.PaymentReference != nil && *cur.PaymentReference == ref {
				return false, repository.ErrDuplicatePaymentReference
			}
		}
	}
	o.Status = to
	applyFields(&o, fields)
	r.db.data.orders[id] = o
	return true, nil
}

func (r fakeOrders) CancelUnclaimed(ctx context.Context, id uint, from models.OrderStatus, fields map[string]any) (bool, error) {
	if err := models.CheckTransition(from, models.StatusCanceled); err != nil {
		return false, err
	}
	defer r.db.lock(ctx)()
	o, ok := r.db.data.orders[id]
	if !ok || o.Status != from || o.Claimed != 0 {
		return false, nil
	}
	o.Status = models.StatusCanceled
	applyFields(&o, fields)
	r.db.data.orders[id] = o
	return true, nil
}

func (r fakeOrders) SetPaymentReference(ctx context.Context, id uint, ref string) (bool, error) {
	defer r.db.lock(ctx)()
	o, ok := r.db.data.orders[id]
	if !ok || o.Status != models.StatusNew {
		return false, nil
	}
	for _, cur := range r.db.data.orders {
		if cur.ID != id && cur.PaymentReference != nil && *cur.PaymentReference == ref {
			return false, repository.ErrDuplicatePaymentReference
		}
	}
	o.PaymentReference = &ref
	r.db.data.orders[id] = o
	return true, nil
}

func (r fakeOrders) IncrementClaimed(ctx context.Context, id uint, n int, at time.Time) (int, bool, error) {
	defer r.db.lock(ctx)()
	r.db.claimCalls++
	o, ok := r.db.data.orders[id]
	if !ok || o.Status != models.StatusTicketSent || o.Claimed+n > o.Purchased {
		return 0, false, nil
	}
	o.Claimed += n
	if o.FirstRedeemedAt == nil {
		o.FirstRedeemedAt = &at
	}
	o.LastRedeemedAt = &at
	r.db.data.orders[id] = o
	return o.Claimed, true, nil
}

func (r fakeOrders) ClaimIssuance(ctx context.Context, id uint, now, staleBefore time.Time) (bool, error) {
	defer r.db.lock(ctx)()
	o, ok := r.db.data.orders[id]
	if !ok || o.Status != models.StatusPaymentConfirmed {
		return false, nil
	}
	if o.IssuingAt != nil && !o.IssuingAt.Before(staleBefore) {
		return false, nil
	}
	o.IssuingAt = &now
	r.db.data.orders[id] = o
	return true, nil
}

func (r fakeOrders) LinkSuccessor(ctx context.Context, id, successorID uint) error {
	defer r.db.lock(ctx)()
	o, ok := r.db.data.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.SupersededByID = &successorID
	r.db.data.orders[id] = o
	return nil
}

func applyFields(o *models.Order, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "payment_reference":
			ref := v.(string)
			o.PaymentReference = &ref
		case "paid_amount":
			o.PaidAmount = v.(int64)
		case "amount_mismatch":
			o.AmountMismatch = v.(bool)
		case "paid_at":
			t := v.(time.Time)
			o.PaidAt = &t
		case "ticket_sent_at":
			t := v.(time.Time)
			o.TicketSentAt = &t
		case "cancel_reason":
			o.CancelReason = v.(string)
		case "canceled_at":
			t := v.(time.Time)
			o.CanceledAt = &t
		default:
			panic(fmt.Sprintf("fake store: unhandled order field %q", k))
		}
	}
}

// test collaborators

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *fakeNotifier) count(tpl Template) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Template == tpl {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) last() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

// sequenceCodes hands out the given codes in order, then repeats the last.
func sequenceCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

var errStoreDown = errors.New("connection refused")
