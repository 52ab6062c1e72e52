package display

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/util"
	"github.com/kapu/hololive-widget-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisStore keeps display targets as Redis hashes so external renderers can
// attach a target by creating widgets:target:<id> and read the label field.
// It also mirrors the published birthday index.
type RedisStore struct {
	client      *redis.Client
	clock       util.Clock
	logger      *zap.Logger
	snapshotTTL time.Duration
}

func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)

	return NewRedisStoreWithClient(client, nil, logger), nil
}

func NewRedisStoreWithClient(client *redis.Client, clock util.Clock, logger *zap.Logger) *RedisStore {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:      client,
		clock:       clock,
		logger:      logger,
		snapshotTTL: constants.CacheTTL.IndexSnapshot,
	}
}

func TargetKey(targetID string) string {
	return constants.RedisKeys.TargetPrefix + targetID
}

func (s *RedisStore) Exists(ctx context.Context, targetID string) (bool, error) {
	key := TargetKey(targetID)
	count, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Error("Target lookup failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("exists failed", "exists", key, err)
	}
	return count > 0, nil
}

func (s *RedisStore) Write(ctx context.Context, targetID, label string) error {
	key := TargetKey(targetID)
	err := s.client.HSet(ctx, key, map[string]any{
		constants.RedisKeys.LabelField:     label,
		constants.RedisKeys.UpdatedAtField: s.clock.Now().UTC().Format(time.RFC3339),
	}).Err()
	if err != nil {
		s.logger.Error("Target write failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("hset failed", "hset", key, err)
	}
	return nil
}

// PublishIndex stores the index JSON under the snapshot key.
func (s *RedisStore) PublishIndex(ctx context.Context, idx *domain.BirthdayIndex) error {
	key := constants.RedisKeys.IndexSnapshot
	data, err := json.Marshal(idx)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.snapshotTTL).Err(); err != nil {
		s.logger.Error("Index snapshot write failed", zap.Error(err))
		return errors.NewCacheError("set failed", "set", key, err)
	}
	s.logger.Debug("Index snapshot published", zap.Int("bytes", len(data)))
	return nil
}

func (s *RedisStore) IsConnected(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
