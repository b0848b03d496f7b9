package features

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/redis/go-redis/v9"
)

// Feature names a runtime capability
type Feature string

const (
	// ExecutionV2 selects the v2 execution strategy of the orchestrator
	ExecutionV2 Feature = "execution-v2"
)

const (
	defaultRedisKeyPrefix = "txengine:feature:"
	redisPingTimeout      = 2 * time.Second
)

// Provider reports whether a feature is enabled. It is asked on every use, never cached.
type Provider interface {
	Enabled(ctx context.Context, feature Feature) (bool, error)
}

// StaticProvider serves the features enabled in the configuration
type StaticProvider struct {
	enabled map[Feature]bool
}

// NewStaticProvider enables the given features
func NewStaticProvider(enabled ...string) *StaticProvider {
	p := &StaticProvider{enabled: make(map[Feature]bool, len(enabled))}
	for _, f := range enabled {
		if f = strings.TrimSpace(f); f != "" {
			p.enabled[Feature(f)] = true
		}
	}
	return p
}

// Enabled returns true if feature was enabled at creation
func (p *StaticProvider) Enabled(_ context.Context, feature Feature) (bool, error) {
	return p.enabled[feature], nil
}

type flagReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisProvider reads runtime flags from redis. A flag missing from redis, or a redis
// failure, falls back to the static configuration.
type RedisProvider struct {
	client   flagReader
	closer   func() error
	prefix   string
	fallback Provider
}

// NewRedisProvider connects to addr and returns a provider falling back to fallback
func NewRedisProvider(addr, prefix string, fallback Provider) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	p := newRedisProvider(client, prefix, fallback)
	p.closer = client.Close
	return p, nil
}

func newRedisProvider(client flagReader, prefix string, fallback Provider) *RedisProvider {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	if fallback == nil {
		fallback = NewStaticProvider()
	}
	return &RedisProvider{client: client, prefix: prefix, fallback: fallback}
}

// Enabled reads the flag of feature
func (p *RedisProvider) Enabled(ctx context.Context, feature Feature) (bool, error) {
	value, err := p.client.Get(ctx, p.prefix+string(feature)).Result()
	if errors.Is(err, redis.Nil) {
		return p.fallback.Enabled(ctx, feature)
	}
	if err != nil {
		log.Warnf("error reading feature %s from redis, using configured value, error: %v", feature, err)
		return p.fallback.Enabled(ctx, feature)
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		log.Warnf("invalid value %q for feature %s, using configured value", value, feature)
		return p.fallback.Enabled(ctx, feature)
	}
	return enabled, nil
}

// Close releases the redis client
func (p *RedisProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// NewProvider returns the provider described by cfg
func NewProvider(cfg Config) (Provider, error) {
	static := NewStaticProvider(cfg.Enabled...)
	if cfg.RedisAddr == "" {
		return static, nil
	}
	return NewRedisProvider(cfg.RedisAddr, cfg.RedisKeyPrefix, static)
}
