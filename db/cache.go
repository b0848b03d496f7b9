package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey  = "txengine:txs:version"
	cacheKeyPrefix   = "txengine:txs:v"
	defaultCacheTTL  = time.Minute
	cachePingTimeout = 2 * time.Second
)

// CachedStorage serves address history reads from redis. Every write bumps a version key,
// which invalidates all cached entries at once. Pending-state reads used by the state
// machine always go to the underlying storage.
type CachedStorage struct {
	repository.Storage
	cache *redis.Client
	ttl   time.Duration
}

// NewCachedStorage wraps base with a redis cache. The cache is disabled when cfg.Addr is empty.
func NewCachedStorage(base repository.Storage, cfg CacheConfig) (*CachedStorage, error) {
	if base == nil {
		return nil, errors.New("base storage is required")
	}
	if cfg.Addr == "" {
		return &CachedStorage{Storage: base}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), cachePingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newCachedStorage(base, client, cfg.TTL.Duration), nil
}

func newCachedStorage(base repository.Storage, client *redis.Client, ttl time.Duration) *CachedStorage {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStorage{Storage: base, cache: client, ttl: ttl}
}

// Close releases the redis client
func (s *CachedStorage) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// InsertTransaction stores a new record and invalidates the cache
func (s *CachedStorage) InsertTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	if err := s.Storage.InsertTransaction(ctx, tx); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// InsertReplacement stores the replacement and invalidates the cache
func (s *CachedStorage) InsertReplacement(ctx context.Context, tx *types.TransactionRecord, superseded *types.TransactionRecord) error {
	if err := s.Storage.InsertReplacement(ctx, tx, superseded); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// UpdateTransaction overwrites a record and invalidates the cache
func (s *CachedStorage) UpdateTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	if err := s.Storage.UpdateTransaction(ctx, tx); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// GetTransactionsByAddress returns the address history, from the cache when possible
func (s *CachedStorage) GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error) {
	if s.cache == nil {
		return s.Storage.GetTransactionsByAddress(ctx, address)
	}
	version, ok := s.version(ctx)
	if !ok {
		return s.Storage.GetTransactionsByAddress(ctx, address)
	}
	key := cacheKey(version, address)
	if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
		var txs []*types.TransactionRecord
		if err := json.Unmarshal([]byte(cached), &txs); err == nil {
			return txs, nil
		}
	}

	txs, err := s.Storage.GetTransactionsByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(txs)
	if err != nil {
		return txs, nil
	}
	if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		log.Debugf("failed to cache txs of %s: %v", address, err)
	}
	return txs, nil
}

func (s *CachedStorage) version(ctx context.Context) (string, bool) {
	version, err := s.cache.Get(ctx, cacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (s *CachedStorage) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, cacheVersionKey).Err(); err != nil {
		log.Warnf("failed to invalidate txs cache: %v", err)
	}
}

func cacheKey(version string, address common.Address) string {
	return fmt.Sprintf("%s%s:addr=%s", cacheKeyPrefix, version, addressKey(address))
}
