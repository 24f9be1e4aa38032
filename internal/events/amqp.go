package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var errNotConnected = errors.New("not connected to a server")

// AMQPPublisher mirrors events onto a durable topic exchange using the
// event type as routing key. The connection is dialed lazily and redialed
// after a failed publish; events published while the broker is down are
// dropped and logged.
type AMQPPublisher struct {
	url      string
	exchange string
	log      zerolog.Logger
	dial     func(url string) (*amqp.Connection, error)

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	retryAt time.Time
}

const amqpRedialDelay = 5 * time.Second

func NewAMQPPublisher(url, exchange string, log zerolog.Logger) *AMQPPublisher {
	if exchange == "" {
		exchange = "routeplanner.events"
	}
	return &AMQPPublisher{url: url, exchange: exchange, log: log, dial: amqp.Dial}
}

func (p *AMQPPublisher) Publish(routeID string, evt Event) {
	msg, err := buildPublishing(evt)
	if err != nil {
		p.log.Error().Err(err).Str("type", evt.Type).Msg("encode event")
		return
	}
	ch, err := p.ensureChannel()
	if err != nil {
		p.log.Warn().Err(err).Str("type", evt.Type).Str("route_id", routeID).Msg("amqp publish skipped")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ch.PublishWithContext(ctx, p.exchange, evt.Type, false, false, msg); err != nil {
		p.log.Warn().Err(err).Str("type", evt.Type).Msg("amqp publish failed")
		p.reset()
	}
}

func (p *AMQPPublisher) ensureChannel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}
	if time.Now().Before(p.retryAt) {
		return nil, errNotConnected
	}
	p.closeLocked()
	conn, err := p.dial(p.url)
	if err != nil {
		p.retryAt = time.Now().Add(amqpRedialDelay)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.retryAt = time.Now().Add(amqpRedialDelay)
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		p.retryAt = time.Now().Add(amqpRedialDelay)
		return nil, err
	}
	p.conn, p.channel = conn, ch
	p.log.Info().Str("exchange", p.exchange).Msg("amqp connected")
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	p.mu.Lock()
	p.closeLocked()
	p.mu.Unlock()
}

func (p *AMQPPublisher) closeLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the connection.
func (p *AMQPPublisher) Close() error {
	p.reset()
	return nil
}

func buildPublishing(evt Event) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.At,
		Type:         evt.Type,
		Headers:      amqp.Table{"route_id": evt.RouteID},
		Body:         body,
	}, nil
}
