// Package eventbus publishes RideRequestEvents onto an AMQP topic exchange,
// an optional fan-out alongside the Postgres audit trail for any external
// consumer (notification workers, analytics) that wants to subscribe without
// polling the database.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

const exchangeName = "ride_request_events"

// Publisher satisfies orchestrator.EventSink over a single long-lived AMQP
// channel.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func Dial(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, channel: ch}, nil
}

func (p *Publisher) Close() error {
	_ = p.channel.Close()
	return p.conn.Close()
}

// Publish satisfies orchestrator.EventSink. The routing key is the event
// type, so a consumer can bind to e.g. "confirmed" or "exhausted" alone.
func (p *Publisher) Publish(ctx context.Context, evt domain.RideRequestEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchangeName, string(evt.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
}
