// Package messaging dispatches job ids through RabbitMQ so several instances
// can share one queue.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/erp/sellersync/internal/infrastructure/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPTransport publishes job ids to a durable queue and consumes them back.
// Messages carry only the id; the job row stays the source of truth.
type AMQPTransport struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	subCh    *amqp.Channel
	exchange string
	queue    string
	prefetch int
	logger   *zap.Logger

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewAMQPTransport connects to the broker and declares the exchange, the
// queue and their binding.
func NewAMQPTransport(cfg config.AMQPConfig, logger *zap.Logger) (*AMQPTransport, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(ch, cfg.Exchange, cfg.Queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &AMQPTransport{
		conn:     conn,
		pubCh:    ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

func declare(ch *amqp.Channel, exchange, queue string) error {
	if exchange != "" {
		err := ch.ExchangeDeclare(
			exchange,
			amqp.ExchangeDirect,
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange: %w", err)
		}
	}

	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if exchange != "" {
		if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}
	return nil
}

// Publish sends one persistent message carrying id.
func (t *AMQPTransport) Publish(ctx context.Context, id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.pubCh.PublishWithContext(ctx,
		t.exchange,
		t.queue,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			MessageId:    id.String(),
			Timestamp:    time.Now().UTC(),
			Body:         []byte(id.String()),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", id, err)
	}
	return nil
}

// Consume starts a consumer on its own channel. Messages are acked once a
// worker has taken the id; malformed messages are dropped.
func (t *AMQPTransport) Consume(ctx context.Context) (<-chan uuid.UUID, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if err := ch.Qos(t.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		t.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	t.mu.Lock()
	t.subCh = ch
	t.mu.Unlock()

	out := make(chan uuid.UUID)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					t.logger.Warn("AMQP delivery channel closed")
					return
				}
				id, err := DecodeJobID(msg.Body)
				if err != nil {
					t.logger.Warn("Dropping malformed job message", zap.Error(err))
					_ = msg.Nack(false, false)
					continue
				}
				select {
				case out <- id:
					_ = msg.Ack(false)
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()

	t.logger.Info("Consuming job queue", zap.String("queue", t.queue), zap.Int("prefetch", t.prefetch))
	return out, nil
}

// Close closes the channels and the connection.
func (t *AMQPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.subCh != nil {
			_ = t.subCh.Close()
		}
		if t.pubCh != nil {
			_ = t.pubCh.Close()
		}
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}

// DecodeJobID parses a message body into a job id.
func DecodeJobID(body []byte) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(string(body)))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id %q: %w", body, err)
	}
	return id, nil
}
