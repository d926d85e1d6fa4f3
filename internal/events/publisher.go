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

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"check-deposit-go/internal/models"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher announces deposit lifecycle transitions and fraud alerts to
// downstream consumers.
type Publisher interface {
	PublishStatus(ctx context.Context, event models.DepositStatusEvent) error
	PublishFraudAlert(ctx context.Context, alert models.FraudAlertEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by deposit id, so every transition of one
// deposit lands on the same partition in order.
type KafkaPublisher struct {
	writer      messageWriter
	statusTopic string
	fraudTopic  string
	retry       models.RetryConfig
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewKafkaPublisher(cfg models.KafkaConfig, retry models.RetryConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if cfg.StatusTopic == "" {
		return nil, fmt.Errorf("kafka publisher requires a status topic")
	}

	if cfg.FraudTopic == "" {
		cfg.FraudTopic = "fraud-alerts"
	}

	// Topic is set per message so one writer serves both streams.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}

	zap.L().Info("Kafka publisher configured",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("status_topic", cfg.StatusTopic),
		zap.String("fraud_topic", cfg.FraudTopic))
	return newKafkaPublisher(writer, cfg.StatusTopic, cfg.FraudTopic, retry), nil
}

func newKafkaPublisher(writer messageWriter, statusTopic, fraudTopic string, retry models.RetryConfig) *KafkaPublisher {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 10 * time.Second
	}
	return &KafkaPublisher{
		writer:      writer,
		statusTopic: statusTopic,
		fraudTopic:  fraudTopic,
		retry:       retry,
		sleep:       sleepCtx,
	}
}

func (p *KafkaPublisher) PublishStatus(ctx context.Context, event models.DepositStatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling status event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.statusTopic,
		Key:   []byte(event.DepositId),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("deposit.status." + string(event.To))},
		},
	}
	return p.publishWithRetry(ctx, msg)
}

func (p *KafkaPublisher) PublishFraudAlert(ctx context.Context, alert models.FraudAlertEvent) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("error marshaling fraud alert: %w", err)
	}

	msg := kafka.Message{
		Topic: p.fraudTopic,
		Key:   []byte(alert.DepositId),
		Value: data,
		Time:  alert.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("deposit.fraud_alert")},
			{Key: "severity", Value: []byte(alert.Severity)},
		},
	}
	return p.publishWithRetry(ctx, msg)
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error

	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			if attempt > 0 {
				zap.L().Info("Event published after retry",
					zap.String("topic", msg.Topic),
					zap.String("deposit_id", string(msg.Key)),
					zap.Int("attempts", attempt+1))
			}
			return nil
		}

		lastErr = err
		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.calculateBackoff(attempt)
		zap.L().Warn("Retrying event publish",
			zap.String("topic", msg.Topic),
			zap.String("deposit_id", string(msg.Key)),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.retry.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	return fmt.Errorf("failed to publish event to topic '%s' after %d attempts: %w",
		msg.Topic, p.retry.MaxAttempts, lastErr)
}

func (p *KafkaPublisher) calculateBackoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay

	if delay > p.retry.MaxDelay {
		delay = p.retry.MaxDelay
	}

	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}

	return delay
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogPublisher logs events instead of publishing them. Used when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) PublishStatus(_ context.Context, event models.DepositStatusEvent) error {
	zap.L().Info("Deposit status event",
		zap.String("deposit_id", event.DepositId),
		zap.String("account_id", event.AccountId),
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)),
		zap.String("reason", event.Reason))
	return nil
}

func (LogPublisher) PublishFraudAlert(_ context.Context, alert models.FraudAlertEvent) error {
	zap.L().Warn("Fraud alert",
		zap.String("alert_id", alert.AlertId),
		zap.String("deposit_id", alert.DepositId),
		zap.String("account_id", alert.AccountId),
		zap.String("severity", alert.Severity),
		zap.Float64("risk_score", alert.RiskScore),
		zap.Strings("indicators", alert.Indicators))
	return nil
}

func (LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []models.DepositStatusEvent
	alerts []models.FraudAlertEvent
}

func (r *Recorder) PublishStatus(_ context.Context, event models.DepositStatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) PublishFraudAlert(_ context.Context, alert models.FraudAlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Alerts returns a copy of every fraud alert published so far.
func (r *Recorder) Alerts() []models.FraudAlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.FraudAlertEvent, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []models.DepositStatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.DepositStatusEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Statuses returns the target status of every recorded event, in order.
func (r *Recorder) Statuses() []models.DepositStatus {
	var out []models.DepositStatus
	for _, e := range r.Events() {
		out = append(out, e.To)
	}
	return out
}
