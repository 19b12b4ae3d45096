package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// RabbitMQClient wraps the RabbitMQ connection. Publishing and consuming use
// separate channels.
type RabbitMQClient struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel

	publishMu sync.Mutex
	publisher *amqp091.Channel
}

// Message represents a RabbitMQ message
type Message struct {
	Body       []byte
	RoutingKey string
	delivery   amqp091.Delivery
}

// Ack acknowledges a message
func (m *Message) Ack(multiple bool) error {
	return m.delivery.Ack(multiple)
}

// Nack negative acknowledges a message
func (m *Message) Nack(multiple, requeue bool) error {
	return m.delivery.Nack(multiple, requeue)
}

// NewRabbitMQClient creates a new RabbitMQ client
func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	publisher, err := conn.Channel()
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:      conn,
		channel:   channel,
		publisher: publisher,
	}, nil
}

// DeclareExchange declares a durable exchange
func (c *RabbitMQClient) DeclareExchange(name, kind string) error {
	return c.channel.ExchangeDeclare(
		name,
		kind,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
}

// DeclareQueue declares a durable queue
func (c *RabbitMQClient) DeclareQueue(name string) error {
	_, err := c.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

// BindQueue binds a queue to an exchange
func (c *RabbitMQClient) BindQueue(queue, routingKey, exchange string) error {
	return c.channel.QueueBind(
		queue,
		routingKey,
		exchange,
		false, // no-wait
		nil,   // arguments
	)
}

// SetPrefetch limits the number of unacknowledged deliveries
func (c *RabbitMQClient) SetPrefetch(count int) error {
	return c.channel.Qos(count, 0, false)
}

// Consume delivers messages from a queue until ctx is done or the channel closes
func (c *RabbitMQClient) Consume(ctx context.Context, queue, consumerTag string) (<-chan Message, error) {
	msgs, err := c.channel.Consume(
		queue,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, err
	}

	messageChan := make(chan Message)
	go func() {
		defer close(messageChan)
		for {
			select {
			case <-ctx.Done():
				c.channel.Cancel(consumerTag, false)
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case messageChan <- Message{Body: d.Body, RoutingKey: d.RoutingKey, delivery: d}:
				case <-ctx.Done():
					d.Nack(false, true)
					c.channel.Cancel(consumerTag, false)
					return
				}
			}
		}
	}()

	return messageChan, nil
}

// Publish publishes a persistent JSON message to an exchange
func (c *RabbitMQClient) Publish(exchange, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	return c.publisher.PublishWithContext(
		ctx,
		exchange,
		routingKey,
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

// DeclarePublishExchange declares an exchange on the publishing channel
func (c *RabbitMQClient) DeclarePublishExchange(name, kind string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.publisher.ExchangeDeclare(name, kind, true, false, false, false, nil)
}

// Healthy reports whether the connection is open
func (c *RabbitMQClient) Healthy() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.publisher != nil {
		c.publisher.Close()
	}
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
