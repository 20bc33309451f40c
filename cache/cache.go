package cache

import (
	"context"
	"time"

	"order-service/config"

	"github.com/redis/go-redis/v9"
)

const (
	// dedup key for carrier webhook redeliveries
	KeyWebhookDedup = "order:webhook:%s:%s" // tracking code, carrier status
	// cached carrier quote for the pre-checkout fee endpoint
	KeyFeeQuote = "order:fee:%d:%s:%d" // district id, ward code, total weight

	TTLWebhookDedup = 24 * time.Hour
	TTLFeeQuote     = 10 * time.Minute
)

var Client *redis.Client

func Init(cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}

	Client = client
	return nil
}

func Close() {
	if Client != nil {
		_ = Client.Close()
	}
}
