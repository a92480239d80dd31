// Package amqp carries ledger change notifications over RabbitMQ. The Client
// implements store.ChangeFeed so sessions in other processes see writes, and
// lets the export worker consume every change from a durable queue.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"gastos/internal/log"
	"gastos/internal/store"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second
)

// ErrCircuitOpen is returned by Publish while the broker is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

var _ store.ChangeFeed = (*Client)(nil)

// NewClient connects and declares the topic exchange. When queueName is set a
// durable queue receiving every ledger change is declared too.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.conn = conn
	c.channel = channel
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if c.queueName == "" {
		return nil
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	err = ch.QueueBind(
		c.queueName,       // queue name
		RoutingPrefix+"#", // every user
		c.exchangeName,    // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish announces a ledger change for uid.
func (c *Client) Publish(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	body, err := NewLedgerChanged(uid).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	err = c.connectLocked()
	if err == nil {
		err = c.channel.PublishWithContext(ctx,
			c.exchangeName, // exchange
			RoutingKey(uid),
			false, // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
	}
	c.mu.Unlock()

	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	slog.DebugContext(ctx, "Published ledger change", "user_id", uid, "exchange", c.exchangeName)
	return nil
}

// Watch binds an exclusive queue to uid's routing key. The queue is re-bound
// after a connection loss, and a signal is sent afterwards since changes may
// have been missed.
func (c *Client) Watch(ctx context.Context, uid string) (<-chan struct{}, error) {
	deliveries, ch, err := c.watchQueue(uid)
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	signal := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(out)
		defer func() {
			if ch != nil {
				ch.Close()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-deliveries:
				if ok {
					signal()
					continue
				}
				deliveries, ch = c.rewatch(ctx, uid)
				if deliveries == nil {
					return
				}
				signal()
			}
		}
	}()
	return out, nil
}

func (c *Client) watchQueue(uid string) (<-chan amqp091.Delivery, *amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, nil, err
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("declare watch queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, RoutingKey(uid), c.exchangeName, false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("bind watch queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("start consuming: %w", err)
	}
	return deliveries, ch, nil
}

// rewatch retries watchQueue with exponential backoff until it succeeds or
// ctx is done, in which case it returns nil.
func (c *Client) rewatch(ctx context.Context, uid string) (<-chan amqp091.Delivery, *amqp091.Channel) {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(exponentialBackoff(attempt)):
		}
		deliveries, ch, err := c.watchQueue(uid)
		if err == nil {
			return deliveries, ch
		}
		slog.WarnContext(ctx, "Re-watching ledger changes failed", log.FieldUserID, uid, "attempt", attempt,
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeNetwork)
	}
}

// Consume delivers every ledger change from the durable queue to handler,
// acknowledging on success and requeueing on failure. Connection losses are
// retried with exponential backoff. It returns when ctx is done.
func (c *Client) Consume(ctx context.Context, handler func(context.Context, *LedgerChanged) error) error {
	if c.queueName == "" {
		return errors.New("consume requires a queue name")
	}
	for attempt := 0; ; {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Consumer disconnected, retrying", log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork, log.FieldRetryIn, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		attempt++
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, *LedgerChanged) error) error {
	c.mu.Lock()
	err := c.connectLocked()
	var channel *amqp091.Channel
	if err == nil {
		channel, err = c.conn.Channel()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	defer channel.Close()

	msgs, err := channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger changes", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			msg, err := LedgerChangedFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message", "error", err, "user_id", msg.UserID)
				delivery.Nack(false, true) // reject and requeue
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed", "dial"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
