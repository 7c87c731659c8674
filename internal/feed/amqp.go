/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"cc-wager-escrow-go/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	routingKeyPrefix = "game."
	// prefetch bounds the deliveries an account may hold unacknowledged
	prefetch = 16
)

// AMQPFeed reads game events from a topic exchange. Each account gets a durable
// queue bound to game.<accountId>.
type AMQPFeed struct {
	conn     *amqp.Connection
	exchange string

	mu      sync.Mutex
	publish *amqp.Channel
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

func NewAMQPFeed(amqpURL, exchange string) (*AMQPFeed, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		return nil, fmt.Errorf("exchange cannot be empty")
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	zap.L().Info("Connected to AMQP event feed", zap.String("exchange", exchange))
	return &AMQPFeed{conn: conn, exchange: exchange, publish: ch}, nil
}

func RoutingKey(accountId string) string {
	return routingKeyPrefix + accountId
}

func queueName(accountId string) string {
	return "wager.events." + accountId
}

// Subscribe opens a dedicated channel for the account. Each event carries an Ack
// callback: the message is acknowledged once the caller reports it handled and
// requeued otherwise. Undecodable messages are dropped.
func (f *AMQPFeed) Subscribe(ctx context.Context, accountId string) (<-chan models.GameEvent, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	q, err := ch.QueueDeclare(queueName(accountId), true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.QueueBind(q.Name, RoutingKey(accountId), f.exchange, false, nil); err != nil {
		ch.Close()
		return nil, err
	}

	msgs, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}

	out := make(chan models.GameEvent)
	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					return
				}
				event, err := decodeEvent(d.Body, accountId)
				if err != nil {
					zap.L().Warn("Dropping undecodable event",
						zap.String("account_id", accountId),
						zap.String("routing_key", d.RoutingKey),
						zap.Error(err))
					d.Nack(false, false)
					continue
				}
				event.Ack = acknowledger(d, accountId)
				select {
				case out <- event:
				case <-ctx.Done():
					d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Publish sends event to the account's routing key.
func (f *AMQPFeed) Publish(ctx context.Context, event models.GameEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publish.PublishWithContext(ctx, f.exchange, RoutingKey(event.AccountId), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (f *AMQPFeed) Close() {
	if f.publish != nil {
		f.publish.Close()
	}
	if f.conn != nil {
		f.conn.Close()
	}
}

// acknowledger settles d once the listener is done with it. Acks that fail because
// the channel closed are harmless: the broker redelivers unacknowledged messages.
func acknowledger(d amqp.Delivery, accountId string) func(handled bool) {
	return func(handled bool) {
		var err error
		if handled {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, true)
		}
		if err != nil {
			zap.L().Warn("Failed to acknowledge event",
				zap.String("account_id", accountId),
				zap.Uint64("delivery_tag", d.DeliveryTag),
				zap.Bool("handled", handled),
				zap.Error(err))
		}
	}
}

func decodeEvent(body []byte, accountId string) (models.GameEvent, error) {
	var event models.GameEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, err
	}
	if event.AccountId == "" {
		event.AccountId = accountId
	}
	if event.AccountId != accountId {
		return event, fmt.Errorf("event for %s delivered on %s's queue", event.AccountId, accountId)
	}
	switch event.Type {
	case models.EventStart, models.EventFinish:
	default:
		return event, fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.ExternalGameId == "" {
		return event, fmt.Errorf("event has no game id")
	}
	return event, nil
}
