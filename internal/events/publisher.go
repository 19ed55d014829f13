// Package events publishes session lifecycle events to RabbitMQ so
// the rest of the hiring portal can react to finished captures.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/session"
)

// Publisher fans session events out on a fanout exchange. Publishing
// is best-effort: a broker outage is logged, never propagated into
// session teardown.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	logger.Info("event publisher connected", zap.String("exchange", exchange))
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Publish implements session.EventSink.
func (p *Publisher) Publish(ctx context.Context, ev session.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal session event", zap.Error(err))
		return
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.logger.Error("publish session event",
			zap.String("type", string(ev.Type)),
			zap.Error(err))
		return
	}

	p.logger.Debug("session event published",
		zap.String("type", string(ev.Type)),
		zap.String("session_id", ev.SessionID))
}

func (p *Publisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
