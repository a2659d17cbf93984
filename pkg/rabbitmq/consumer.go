package rabbitmq

import (
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeKind = "topic"

	CatalogExchange = "catalog"
	CatalogQueue    = "ticketing-service.catalog"

	// Messages the catalog consumer refuses without requeue are parked here
	// for inspection instead of being discarded by the broker.
	CatalogDeadLetterExchange = "catalog.dlx"
	CatalogDeadLetterQueue    = "ticketing-service.catalog.dead"

	// Routing keys published by the admin side when the catalog changes.
	KeyEvent      = "catalog.event"
	KeyTicketType = "catalog.ticket_type"
	KeyReferrer   = "catalog.referrer"

	consumerTag = "ticketing-service"
)

// Topology is the exchange, queue and bindings a consumer needs before it
// can read.
type Topology struct {
	Exchange           string
	Queue              string
	DeadLetterExchange string
	DeadLetterQueue    string
	Keys               []string
	Prefetch           int
}

// CatalogTopology binds only the keys the catalog consumer understands. A
// prefetch of one keeps updates in publish order.
func CatalogTopology() Topology {
	return Topology{
		Exchange:           CatalogExchange,
		Queue:              CatalogQueue,
		DeadLetterExchange: CatalogDeadLetterExchange,
		DeadLetterQueue:    CatalogDeadLetterQueue,
		Keys:               []string{KeyEvent, KeyTicketType, KeyReferrer},
		Prefetch:           1,
	}
}

func (t Topology) queueArgs() amqp.Table {
	if t.DeadLetterExchange == "" {
		return nil
	}
	return amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange}
}

// declarer is the part of *amqp.Channel that topology setup touches.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
}

func (t Topology) declare(ch declarer) error {
	if t.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(t.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq dead-letter exchange declare: %w", err)
		}
		dlq, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("rabbitmq dead-letter queue declare: %w", err)
		}
		if err := ch.QueueBind(dlq.Name, "", t.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq dead-letter queue bind: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(t.Exchange, ExchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.queueArgs())
	if err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	for _, key := range t.Keys {
		if err := ch.QueueBind(q.Name, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq queue bind %s: %w", key, err)
		}
	}
	if t.Prefetch > 0 {
		if err := ch.Qos(t.Prefetch, 0, false); err != nil {
			return fmt.Errorf("rabbitmq qos: %w", err)
		}
	}
	return nil
}

type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	topology Topology
}

func NewConsumer(url string, topology Topology) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := topology.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch, topology: topology}, nil
}

func (c *Consumer) Consume() (<-chan amqp.Delivery, error) {
	msgs, err := c.channel.Consume(
		c.topology.Queue,
		consumerTag,
		false, // manual ack after the upsert commits
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume %s: %w", c.topology.Queue, err)
	}

	log.Printf("[RabbitMQ] consuming from queue %s (keys %v, dead letters to %s)",
		c.topology.Queue, c.topology.Keys, c.topology.DeadLetterQueue)
	return msgs, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
