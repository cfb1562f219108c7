package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue is a Queue on RabbitMQ. Each topic is a durable queue on the
// default exchange; payloads travel as JSON and subscribers receive them as
// json.RawMessage.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex

	Log        logrus.FieldLogger
	MaxRetries int
}

// DialAMQP connects to the broker at url.
func DialAMQP(url string, log logrus.FieldLogger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, Log: log, MaxRetries: 3}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
}

// Subscribe consumes topic in the background. A failed delivery is
// republished with an incremented retry header until MaxRetries is reached.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			q.handle(topic, d, handler)
		}
		q.Log.WithField("topic", topic).Info("consumer stopped")
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler func(payload any) error) {
	err := handler(json.RawMessage(d.Body))
	if err == nil {
		d.Ack(false)
		return
	}

	attempt := retryCount(d.Headers) + 1
	entry := q.Log.WithFields(logrus.Fields{"topic": topic, "attempt": attempt}).WithError(err)
	if attempt > q.MaxRetries {
		entry.Error("job permanently failed")
		d.Ack(false)
		return
	}

	entry.Warn("job failed, requeueing")
	if err := q.publish(topic, d.Body, attempt); err != nil {
		entry.WithError(err).Error("requeue failed")
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

// Close shuts the channel and connection down.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

// retryCount reads the retry header. The broker may hand integers back with
// any width.
func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}
