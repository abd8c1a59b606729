package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ACBRI/veritas.ia/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName   = "veritas.reports"
	BindingPattern = "report.#"

	RoutingKeyReportCreated = "report.created"
	RoutingKeyConfirmation  = "report.confirmation"
	RoutingKeyExpired       = "report.expired"
	RoutingKeyDeleted       = "report.deleted"
	RoutingKeyHeartbeat     = "report.heartbeat"
)

var routingKeyTypes = map[string]model.PushEventKind{
	RoutingKeyReportCreated: model.PushNewReport,
	RoutingKeyConfirmation:  model.PushConfirmationUpdate,
	RoutingKeyExpired:       model.PushReportExpired,
	RoutingKeyDeleted:       model.PushReportDeleted,
	RoutingKeyHeartbeat:     model.PushHeartbeat,
}

// RabbitMQDialer consumes push envelopes from the report exchange. Each
// dial gets its own exclusive queue, so a reconnect starts from live events.
type RabbitMQDialer struct {
	url string
}

func NewRabbitMQDialer(host, port, user, password string) *RabbitMQDialer {
	return &RabbitMQDialer{
		url: fmt.Sprintf("amqp://%s:%s@%s:%s/", user, password, host, port),
	}
}

func (d *RabbitMQDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := amqp.Dial(d.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	rc, err := setupConsumer(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return rc, nil
}

func setupConsumer(conn *amqp.Connection) (*rabbitConn, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		"",
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, BindingPattern, ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue with key %s: %w", BindingPattern, err)
	}

	msgs, err := channel.Consume(
		queue.Name,
		"",    // consumer tag
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Printf("push: RabbitMQ consumer bound to %s with %s", ExchangeName, BindingPattern)
	return &rabbitConn{conn: conn, channel: channel, msgs: msgs}, nil
}

type rabbitConn struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	msgs    <-chan amqp.Delivery
	once    sync.Once
}

func (c *rabbitConn) ReadMessage() ([]byte, error) {
	msg, ok := <-c.msgs
	if !ok {
		return nil, errors.New("delivery channel closed")
	}
	if err := msg.Ack(false); err != nil {
		log.Printf("push: ack %s: %v", msg.RoutingKey, err)
	}
	return withRoutingType(msg.Body, msg.RoutingKey), nil
}

func (c *rabbitConn) Close() error {
	var err error
	c.once.Do(func() {
		if c.channel != nil {
			c.channel.Close()
		}
		err = c.conn.Close()
	})
	return err
}

// withRoutingType fills in the envelope type from the routing key when the
// publisher sent a bare payload. Bodies that are not JSON objects are passed
// through for the decoder to reject.
func withRoutingType(body []byte, routingKey string) []byte {
	kind, ok := routingKeyTypes[routingKey]
	if !ok {
		return body
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return body
	}
	if _, has := fields["type"]; has {
		return body
	}

	env := map[string]interface{}{"type": kind}
	if data, has := fields["data"]; has {
		env["data"] = data
	} else if len(fields) > 0 {
		env["data"] = json.RawMessage(body)
	}

	out, err := json.Marshal(env)
	if err != nil {
		return body
	}
	return out
}
