package dto

import (
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
)

type OrderResponse struct {
	ID               uint               `json:"id"`
	Code             string             `json:"code"`
	EventID          uint               `json:"event_id"`
	TicketTypeID     uint               `json:"ticket_type_id"`
	TicketTypeName   string             `json:"ticket_type_name,omitempty"`
	BuyerName        string             `json:"buyer_name"`
	BuyerEmail       string             `json:"buyer_email"`
	BuyerPhone       string             `json:"buyer_phone,omitempty"`
	Purchased        int                `json:"purchased"`
	Claimed          int                `json:"claimed"`
	Remaining        int                `json:"remaining"`
	UnitPrice        int64              `json:"unit_price"`
	ProcessingFee    int64              `json:"processing_fee"`
	Total            int64              `json:"total"`
	ReferrerCode     string             `json:"referrer_code,omitempty"`
	Status           models.OrderStatus `json:"status"`
	PaymentReference *string            `json:"payment_reference,omitempty"`
	AmountMismatch   bool               `json:"amount_mismatch"`
	SupersedesID     *uint              `json:"supersedes_id,omitempty"`
	SupersededByID   *uint              `json:"superseded_by_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	PaidAt           *time.Time         `json:"paid_at,omitempty"`
	TicketSentAt     *time.Time         `json:"ticket_sent_at,omitempty"`
	CanceledAt       *time.Time         `json:"canceled_at,omitempty"`
}

type AvailabilityResponse struct {
	EventID     uint                             `json:"event_id"`
	TicketTypes []service.TicketTypeAvailability `json:"ticket_types"`
}

type WebhookResponse struct {
	Result      string             `json:"result"` // processed, duplicate or ignored
	OrderCode   string             `json:"order_code,omitempty"`
	OrderStatus models.OrderStatus `json:"order_status,omitempty"`
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

func ToOrderResponse(o *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:               o.ID,
		Code:             o.Code,
		EventID:          o.EventID,
		TicketTypeID:     o.TicketTypeID,
		BuyerName:        o.BuyerName,
		BuyerEmail:       o.BuyerEmail,
		BuyerPhone:       o.BuyerPhone,
		Purchased:        o.Purchased,
		Claimed:          o.Claimed,
		Remaining:        o.Remaining(),
		UnitPrice:        o.UnitPrice,
		ProcessingFee:    o.ProcessingFee,
		Total:            o.ExpectedTotal(),
		ReferrerCode:     o.ReferrerCode,
		Status:           o.Status,
		PaymentReference: o.PaymentReference,
		AmountMismatch:   o.AmountMismatch,
		SupersedesID:     o.SupersedesID,
		SupersededByID:   o.SupersededByID,
		CreatedAt:        o.CreatedAt,
		PaidAt:           o.PaidAt,
		TicketSentAt:     o.TicketSentAt,
		CanceledAt:       o.CanceledAt,
	}
	if o.TicketType != nil {
		resp.TicketTypeName = o.TicketType.Name
	}
	return resp
}

func ToOrderResponses(orders []models.Order) []OrderResponse {
	resp := make([]OrderResponse, len(orders))
	for i := range orders {
		resp[i] = ToOrderResponse(&orders[i])
	}
	return resp
}
