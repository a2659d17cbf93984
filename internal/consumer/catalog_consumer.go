package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/dextersy/label-dashboard-sub004/pkg/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"
)

const handleTimeout = 10 * time.Second

// errPoison marks a message that will never apply, so it is dropped rather
// than requeued.
var errPoison = errors.New("unprocessable catalog message")

type eventMessage struct {
	ID              uint       `json:"id"`
	Name            string     `json:"name"`
	CloseTime       *time.Time `json:"close_time"`
	VerificationPIN string     `json:"verification_pin"`
}

type ticketTypeMessage struct {
	ID          uint       `json:"id"`
	EventID     uint       `json:"event_id"`
	Name        string     `json:"name"`
	Price       int64      `json:"price"`
	Capacity    int        `json:"capacity"`
	SaleStartAt *time.Time `json:"sale_start_at"`
	SaleEndAt   *time.Time `json:"sale_end_at"`
	Disabled    bool       `json:"disabled"`
}

type referrerMessage struct {
	ID      uint   `json:"id"`
	EventID uint   `json:"event_id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
}

// CatalogConsumer keeps the local copy of events, ticket types and referrers
// in step with the admin side.
type CatalogConsumer struct {
	store repository.Store
	cache service.AvailabilityCache
}

func NewCatalogConsumer(store repository.Store, cache service.AvailabilityCache) *CatalogConsumer {
	return &CatalogConsumer{store: store, cache: cache}
}

func (cc *CatalogConsumer) Start(msgs <-chan amqp.Delivery) {
	go func() {
		for msg := range msgs {
			cc.handleMessage(msg)
		}
		log.Println("[CatalogConsumer] channel closed, stopping consumer")
	}()
}

func (cc *CatalogConsumer) handleMessage(msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err := cc.apply(ctx, msg.RoutingKey, msg.Body)
	switch {
	case err == nil:
		msg.Ack(false)
	case errors.Is(err, errPoison) || repository.IsConstraintViolation(err):
		log.Printf("[CatalogConsumer] dropping %s message: %v", msg.RoutingKey, err)
		msg.Nack(false, false)
	default:
		log.Printf("[CatalogConsumer] failed to apply %s message, requeueing: %v", msg.RoutingKey, err)
		msg.Nack(false, true)
	}
}

func (cc *CatalogConsumer) apply(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case rabbitmq.KeyEvent:
		var m eventMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		if m.ID == 0 {
			return fmt.Errorf("%w: event without id", errPoison)
		}
		if err := cc.store.Events.Upsert(ctx, &models.Event{
			ID:              m.ID,
			Name:            m.Name,
			CloseTime:       m.CloseTime,
			VerificationPIN: m.VerificationPIN,
		}); err != nil {
			return fmt.Errorf("upsert event %d: %w", m.ID, err)
		}
		log.Printf("[CatalogConsumer] synced event %d: %s", m.ID, m.Name)
		cc.invalidate(ctx, m.ID)

	case rabbitmq.KeyTicketType:
		var m ticketTypeMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		if m.ID == 0 || m.EventID == 0 || m.Capacity < 0 || m.Price < 0 {
			return fmt.Errorf("%w: ticket type %d is incomplete", errPoison, m.ID)
		}
		tt := &models.TicketType{
			ID:          m.ID,
			EventID:     m.EventID,
			Name:        m.Name,
			Price:       m.Price,
			Capacity:    m.Capacity,
			SaleStartAt: m.SaleStartAt,
			SaleEndAt:   m.SaleEndAt,
			Disabled:    m.Disabled,
		}
		if err := cc.clampCapacity(ctx, tt); err != nil {
			return err
		}
		if err := cc.store.TicketTypes.Upsert(ctx, tt); err != nil {
			return fmt.Errorf("upsert ticket type %d: %w", m.ID, err)
		}
		log.Printf("[CatalogConsumer] synced ticket type %d (event %d): %s", m.ID, m.EventID, m.Name)
		cc.invalidate(ctx, m.EventID)

	case rabbitmq.KeyReferrer:
		var m referrerMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		if m.ID == 0 || m.EventID == 0 || m.Code == "" {
			return fmt.Errorf("%w: referrer %d is incomplete", errPoison, m.ID)
		}
		if err := cc.store.Referrers.Upsert(ctx, &models.Referrer{
			ID:      m.ID,
			EventID: m.EventID,
			Name:    m.Name,
			Code:    m.Code,
		}); err != nil {
			return fmt.Errorf("upsert referrer %d: %w", m.ID, err)
		}
		log.Printf("[CatalogConsumer] synced referrer %s for event %d", m.Code, m.EventID)

	default:
		return fmt.Errorf("%w: unknown routing key %q", errPoison, routingKey)
	}
	return nil
}

// clampCapacity keeps a capacity cut from landing below tickets already
// sold. The rest of the message still applies; the repository clamps again
// in SQL for sales that land after this read.
func (cc *CatalogConsumer) clampCapacity(ctx context.Context, tt *models.TicketType) error {
	if tt.Capacity == 0 {
		return nil
	}
	cur, err := cc.store.TicketTypes.FindByID(ctx, tt.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find ticket type %d: %w", tt.ID, err)
	}
	if tt.Capacity < cur.Sold {
		log.Printf("[CatalogConsumer] ticket type %d: capacity %d is below %d sold, keeping %d",
			tt.ID, tt.Capacity, cur.Sold, cur.Sold)
		tt.Capacity = cur.Sold
	}
	return nil
}

func (cc *CatalogConsumer) invalidate(ctx context.Context, eventID uint) {
	if cc.cache != nil {
		cc.cache.Invalidate(ctx, eventID)
	}
}
