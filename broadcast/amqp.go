package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"wa_listings/models"
)

const amqpQueueSize = 256

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink republishes events to a fanout exchange, routing key = event name.
// Publishing happens on a single goroutine so exchange order matches publish
// order; when that goroutine falls behind, new events are dropped.
type AMQPSink struct {
	exchange string
	pub      amqpPublisher
	conn     *amqp.Connection
	ch       *amqp.Channel

	queue     chan models.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	logger *slog.Logger
}

// DialAMQP connects, declares the exchange and starts the publisher.
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	s := newAMQPSink(ch, exchange, logger)
	s.conn = conn
	s.ch = ch
	return s, nil
}

func newAMQPSink(pub amqpPublisher, exchange string, logger *slog.Logger) *AMQPSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AMQPSink{
		exchange: exchange,
		pub:      pub,
		queue:    make(chan models.Event, amqpQueueSize),
		logger:   logger.With("component", "amqp_sink", "exchange", exchange),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AMQPSink) Send(ev models.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("publish queue full, event dropped", "event", ev.Name)
	}
}

func (s *AMQPSink) run() {
	defer s.wg.Done()
	for ev := range s.queue {
		body, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal event", "event", ev.Name, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.pub.PublishWithContext(ctx, s.exchange, ev.Name, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    ev.Timestamp,
			Type:         ev.Name,
			Body:         body,
		})
		cancel()
		if err != nil {
			s.logger.Warn("publish failed", "event", ev.Name, "error", err)
		}
	}
}

// Close drains queued events and closes the channel and connection.
func (s *AMQPSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		s.wg.Wait()

		if s.ch != nil {
			err = s.ch.Close()
		}
		if s.conn != nil {
			if cerr := s.conn.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
