// Package redisconn builds Redis clients from a REDIS_URL.
// This is part of the platform layer and contains no business logic.
package redisconn

import (
	"context"
	"crypto/tls"
	"fmt"

	"lead_rotation_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

// ParseOptions parses a redis:// or rediss:// URL. tlsInsecure disables
// certificate verification for managed instances with private CAs.
func ParseOptions(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return opt, nil
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := ParseOptions(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
