// Package alerts delivers budget alerts to channels outside the process.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agent-governor/agent-governor/pkg/models"
)

// DefaultChannel is the Pub/Sub channel budget alerts are published on
const DefaultChannel = "governor:budget-alerts"

// RedisPublisher publishes budget alerts as JSON over Redis Pub/Sub
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// RedisConfig holds configuration for the Redis publisher
type RedisConfig struct {
	URL      string
	Password string
	Channel  string
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	return &RedisPublisher{client: client, channel: channel}, nil
}

// Channel returns the channel alerts are published on
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// SendBudgetAlert publishes the alert
func (p *RedisPublisher) SendBudgetAlert(ctx context.Context, alert models.BudgetAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal budget alert: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish budget alert: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Sender is anything that can deliver a budget alert
type Sender interface {
	SendBudgetAlert(ctx context.Context, alert models.BudgetAlert) error
}

// Multi fans an alert out to several senders. Every sender is tried; the
// failures are joined.
type Multi []Sender

// SendBudgetAlert delivers the alert to every sender
func (m Multi) SendBudgetAlert(ctx context.Context, alert models.BudgetAlert) error {
	var errs []error
	for _, s := range m {
		if err := s.SendBudgetAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
