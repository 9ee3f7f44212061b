// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

const amqpSinkName = "amqp"

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes every snapshot to a topic exchange with routing key
// match.<matchID>.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

// DialAMQP connects to the broker and declares exchange as a durable topic exchange.
func DialAMQP(url string, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	publisher := NewAMQPPublisher(channel, exchange)
	publisher.conn = conn

	return publisher, nil
}

func NewAMQPPublisher(channel amqpChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{channel: channel, exchange: exchange}
}

func (p *AMQPPublisher) Name() string {
	return amqpSinkName
}

func (p *AMQPPublisher) Deliver(scope *envelope.Scope, snapshot *models.Snapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return p.channel.Publish(p.exchange, RoutingKey(snapshot.MatchID), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%s:%d", snapshot.MatchID, snapshot.Version),
		Timestamp:    snapshot.PublishedAt,
		Headers: amqp.Table{
			"version":  snapshot.Version,
			"batch_id": snapshot.BatchID,
			"trace_id": scope.TraceID,
		},
		Body: body,
	})
}

func (p *AMQPPublisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if connErr := p.conn.Close(); err == nil {
			err = connErr
		}
	}
	return err
}

func RoutingKey(matchID string) string {
	return "match." + matchID
}
