package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	connectTimeout      = 30 * time.Second
	retryInitialBackoff = 100 * time.Millisecond
)

// AnomalyNotification is the message published for each new anomaly
type AnomalyNotification struct {
	AnomalyID      string          `json:"anomaly_id"`
	VehicleID      string          `json:"vehicle_id"`
	VehicleName    string          `json:"vehicle_name"`
	Type           string          `json:"type"`
	Category       models.Category `json:"category"`
	Severity       models.Severity `json:"severity"`
	Value          float64         `json:"value"`
	Confidence     float64         `json:"confidence"`
	Context        string          `json:"context"`
	Recommendation string          `json:"recommendation"`
	Timestamp      int64           `json:"timestamp"`
}

// NewNotification flattens an anomaly into its wire form
func NewNotification(a models.DetectedAnomaly) AnomalyNotification {
	return AnomalyNotification{
		AnomalyID:      a.ID,
		VehicleID:      a.VehicleID,
		VehicleName:    a.VehicleName,
		Type:           a.AnomalyType.ID,
		Category:       a.AnomalyType.Category,
		Severity:       a.AnomalyType.Severity,
		Value:          a.Value,
		Confidence:     a.Confidence,
		Context:        a.Context,
		Recommendation: a.Recommendation,
		Timestamp:      a.DetectedAt.Unix(),
	}
}

// publishClient is the part of *redis.Client the publisher needs
type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes anomaly notifications on a redis channel
type RedisPublisher struct {
	client     publishClient
	channel    string
	limiter    *rate.Limiter // nil means unlimited
	maxRetries int
	logger     zerolog.Logger
}

// NewRedisPublisher connects to redis, retrying the ping with exponential
// backoff until connectTimeout elapses.
func NewRedisPublisher(ctx context.Context, cfg config.AlertingConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	logger = logger.With().Str("component", "alerting").Str("channel", cfg.Channel).Logger()

	ping := func() error {
		return client.Ping(ctx).Err()
	}
	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = connectTimeout
	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("redis not reachable yet")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(backoffStrategy, ctx), notify); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPublisher{
		client:     client,
		channel:    cfg.Channel,
		limiter:    newLimiter(cfg.RateLimit),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Publish sends one notification per anomaly, retrying each up to maxRetries
// times. It stops at the first notification that still fails.
func (p *RedisPublisher) Publish(ctx context.Context, anomalies []models.DetectedAnomaly) error {
	for _, a := range anomalies {
		msgJSON, err := json.Marshal(NewNotification(a))
		if err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		publish := func() error {
			return p.client.Publish(ctx, p.channel, msgJSON).Err()
		}
		if err := backoff.Retry(publish, p.retryPolicy(ctx)); err != nil {
			return fmt.Errorf("failed to publish anomaly %s: %w", a.ID, err)
		}
	}

	p.logger.Debug().Int("count", len(anomalies)).Msg("published anomalies")
	return nil
}

func (p *RedisPublisher) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialBackoff
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxRetries)), ctx)
}

// Close closes the redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher drops every anomaly; used when alerting is disabled
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, []models.DetectedAnomaly) error {
	return nil
}
