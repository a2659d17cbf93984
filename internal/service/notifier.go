package service

import (
	"context"
	"log"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
)

type Template string

const (
	TemplateTicketIssued   Template = "issued"
	TemplateTicketCanceled Template = "canceled"
)

// Notification is what the dispatcher needs to reach a buyer about a ticket.
type Notification struct {
	Template   Template `json:"template"`
	TicketCode string   `json:"ticket_code"`
	EventID    uint     `json:"event_id"`
	Entries    int      `json:"entries"`
	BuyerName  string   `json:"buyer_name"`
	BuyerEmail string   `json:"buyer_email"`
	BuyerPhone string   `json:"buyer_phone,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Notifier hands notifications to the delivery side (email/SMS). Delivery
// itself happens elsewhere.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

func notificationFor(o *models.Order, tpl Template, reason string) Notification {
	return Notification{
		Template:   tpl,
		TicketCode: o.Code,
		EventID:    o.EventID,
		Entries:    o.Purchased,
		BuyerName:  o.BuyerName,
		BuyerEmail: o.BuyerEmail,
		BuyerPhone: o.BuyerPhone,
		Reason:     reason,
	}
}

func send(ctx context.Context, n Notifier, note Notification) error {
	if n == nil {
		return nil
	}
	return n.Send(ctx, note)
}

// notify is fire-and-forget: failures are logged, never returned.
func notify(ctx context.Context, n Notifier, note Notification) {
	if err := send(ctx, n, note); err != nil {
		log.Printf("[Notifier] failed to send %s for ticket %s: %v", note.Template, note.TicketCode, err)
	}
}

// Publisher is the message broker side of notification delivery.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type brokerNotifier struct {
	pub Publisher
}

// NewBrokerNotifier publishes each notification under "ticket.<template>"
// for the delivery workers to pick up.
func NewBrokerNotifier(pub Publisher) Notifier {
	return &brokerNotifier{pub: pub}
}

func (n *brokerNotifier) Send(ctx context.Context, note Notification) error {
	return n.pub.Publish(ctx, "ticket."+string(note.Template), note)
}
