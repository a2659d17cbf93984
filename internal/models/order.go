package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type OrderStatus string

const (
	StatusNew              OrderStatus = "new"
	StatusPaymentConfirmed OrderStatus = "payment_confirmed"
	StatusTicketSent       OrderStatus = "ticket_sent"
	StatusCanceled         OrderStatus = "canceled"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// transitions is the closed set of legal status changes. Anything not listed
// is rejected.
var transitions = map[OrderStatus][]OrderStatus{
	StatusNew:              {StatusPaymentConfirmed, StatusCanceled},
	StatusPaymentConfirmed: {StatusTicketSent, StatusCanceled},
	StatusTicketSent:       {StatusCanceled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNew, StatusPaymentConfirmed, StatusTicketSent, StatusCanceled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition wrapped with both states when
// from -> to is not in the table.
func CheckTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Paid reports whether the order has been confirmed by the payment provider.
func (s OrderStatus) Paid() bool {
	return s == StatusPaymentConfirmed || s == StatusTicketSent
}

// Order is one buyer's purchase, shown to buyers as a "ticket".
type Order struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Code          string      `gorm:"type:varchar(16);not null;uniqueIndex" json:"code"`
	EventID       uint        `gorm:"not null;index" json:"event_id"`
	TicketTypeID  uint        `gorm:"not null;index" json:"ticket_type_id"`
	BuyerName     string      `gorm:"not null" json:"buyer_name"`
	BuyerEmail    string      `gorm:"not null" json:"buyer_email"`
	BuyerPhone    string      `json:"buyer_phone,omitempty"`
	Purchased     int         `gorm:"not null" json:"purchased"`
	Claimed       int         `gorm:"not null;default:0" json:"claimed"`
	UnitPrice     int64       `gorm:"not null" json:"unit_price"`
	ProcessingFee int64       `gorm:"not null;default:0" json:"processing_fee"`
	ReferrerCode  string      `gorm:"type:varchar(64)" json:"referrer_code,omitempty"`
	ReferrerID    *uint       `json:"referrer_id,omitempty"`
	Status        OrderStatus `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`

	PaymentReference *string `gorm:"type:varchar(128)" json:"payment_reference,omitempty"`
	PaidAmount       int64   `gorm:"not null;default:0" json:"paid_amount"`
	AmountMismatch   bool    `gorm:"not null;default:false" json:"amount_mismatch"`

	SupersedesID   *uint  `json:"supersedes_id,omitempty"`
	SupersededByID *uint  `json:"superseded_by_id,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	TicketSentAt    *time.Time `json:"ticket_sent_at,omitempty"`
	IssuingAt       *time.Time `json:"-"`
	FirstRedeemedAt *time.Time `json:"first_redeemed_at,omitempty"`
	LastRedeemedAt  *time.Time `json:"last_redeemed_at,omitempty"`
	CanceledAt      *time.Time `json:"canceled_at,omitempty"`

	TicketType *TicketType `gorm:"foreignKey:TicketTypeID" json:"ticket_type,omitempty"`
}

func (o *Order) Remaining() int {
	return o.Purchased - o.Claimed
}

// ExpectedTotal is what the provider should have collected for this order.
// It saturates at math.MaxInt64 rather than wrapping, so an out-of-range
// order can never match a real payment amount.
func (o *Order) ExpectedTotal() int64 {
	sub, err := LineTotal(o.UnitPrice, o.Purchased)
	if err != nil {
		return math.MaxInt64
	}
	total, err := AddAmounts(sub, o.ProcessingFee)
	if err != nil {
		return math.MaxInt64
	}
	return total
}
