package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/dto"
	"github.com/dextersy/label-dashboard-sub004/internal/middleware"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock OrderService ---

type mockOrderService struct {
	createFn    func(ctx context.Context, in service.CreateOrderInput) (*models.Order, error)
	getFn       func(ctx context.Context, id uint) (*models.Order, error)
	getByCodeFn func(ctx context.Context, code string) (*models.Order, error)
	listFn      func(ctx context.Context, eventID uint, status *models.OrderStatus) ([]models.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, in service.CreateOrderInput) (*models.Order, error) {
	return m.createFn(ctx, in)
}
func (m *mockOrderService) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	return m.getFn(ctx, id)
}
func (m *mockOrderService) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	return m.getByCodeFn(ctx, code)
}
func (m *mockOrderService) ListOrders(ctx context.Context, eventID uint, status *models.OrderStatus) ([]models.Order, error) {
	return m.listFn(ctx, eventID, status)
}

// --- Mock PaymentService ---

type mockPaymentService struct {
	attachFn  func(ctx context.Context, orderID uint, ref string) (*models.Order, error)
	confirmFn func(ctx context.Context, n service.PaymentNotification) (*service.ConfirmResult, error)
	failFn    func(ctx context.Context, n service.PaymentNotification, reason string) (*models.Order, error)
	cancelFn  func(ctx context.Context, orderID uint, reason string) (*models.Order, error)
}

func (m *mockPaymentService) AttachPaymentReference(ctx context.Context, orderID uint, ref string) (*models.Order, error) {
	return m.attachFn(ctx, orderID, ref)
}
func (m *mockPaymentService) ConfirmPayment(ctx context.Context, n service.PaymentNotification) (*service.ConfirmResult, error) {
	return m.confirmFn(ctx, n)
}
func (m *mockPaymentService) FailPayment(ctx context.Context, n service.PaymentNotification, reason string) (*models.Order, error) {
	return m.failFn(ctx, n, reason)
}
func (m *mockPaymentService) CancelOrder(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	return m.cancelFn(ctx, orderID, reason)
}
func (m *mockPaymentService) RetryIssuance(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	return 0, nil
}
func (m *mockPaymentService) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	return 0, nil
}

// --- Mock TransferService ---

type mockTransferService struct {
	transferFn func(ctx context.Context, orderID uint, to service.Buyer) (*models.Order, error)
}

func (m *mockTransferService) Transfer(ctx context.Context, orderID uint, to service.Buyer) (*models.Order, error) {
	return m.transferFn(ctx, orderID, to)
}

// --- Mock CheckInService ---

type mockCheckInService struct {
	authFn   func(ctx context.Context, eventID uint, pin string) (*service.Session, error)
	lookupFn func(ctx context.Context, token, code string) (*service.OrderSnapshot, error)
	claimFn  func(ctx context.Context, token, code string, count int) (*service.ClaimResult, error)
}

func (m *mockCheckInService) Authenticate(ctx context.Context, eventID uint, pin string) (*service.Session, error) {
	return m.authFn(ctx, eventID, pin)
}
func (m *mockCheckInService) Lookup(ctx context.Context, token, code string) (*service.OrderSnapshot, error) {
	return m.lookupFn(ctx, token, code)
}
func (m *mockCheckInService) Claim(ctx context.Context, token, code string, count int) (*service.ClaimResult, error) {
	return m.claimFn(ctx, token, code, count)
}

// --- Mock InventoryService ---

type mockInventoryService struct {
	service.InventoryService
	availabilityFn func(ctx context.Context, eventID uint) ([]service.TicketTypeAvailability, error)
}

func (m *mockInventoryService) Availability(ctx context.Context, eventID uint) ([]service.TicketTypeAvailability, error) {
	return m.availabilityFn(ctx, eventID)
}

// --- Helpers ---

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = middleware.NewRequestValidator()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withParam(c echo.Context, name, value string) echo.Context {
	c.SetParamNames(name)
	c.SetParamValues(value)
	return c
}

func assertHTTPError(t *testing.T, err error, status int, code string) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %v", err)
	assert.Equal(t, status, he.Code)
	if code == "" {
		return
	}
	body, ok := he.Message.(dto.ErrorResponse)
	require.True(t, ok, "expected dto.ErrorResponse message, got %T", he.Message)
	assert.Equal(t, code, body.Code)
}

func sentOrder() *models.Order {
	return &models.Order{
		ID:            1,
		Code:          "K7P3QX",
		EventID:       7,
		TicketTypeID:  11,
		BuyerName:     "Alice Santos",
		BuyerEmail:    "alice@example.com",
		Purchased:     3,
		Claimed:       1,
		UnitPrice:     150000,
		ProcessingFee: 23500,
		Status:        models.StatusTicketSent,
		CreatedAt:     time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
	}
}
