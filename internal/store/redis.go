package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ludoduel/internal/logger"
	"ludoduel/internal/metrics"
)

const (
	// ограничение повторов оптимистичной транзакции; при двух клиентах
	// конфликты единичны и лимит практически недостижим
	txMaxRetries = 64

	// буфер подписки: подписчик обрабатывает снапшоты быстрее, чем
	// два игрока коммитят ходы, но запас не помешает
	subscribeBuffer = 16
)

// RedisStore реализует Store поверх Redis: WATCH/MULTI для транзакций,
// PUBLISH/SUBSCRIBE для push-доставки снапшотов.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Connect разбирает REDIS_URL, открывает клиент и проверяет его пингом
func Connect(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb), nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Read(ctx context.Context, path string, v any) error {
	raw, err := s.rdb.Get(ctx, path).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return json.Unmarshal(raw, v)
}

func (s *RedisStore) Transact(ctx context.Context, path string, fn TxFunc) error {
	for attempt := 0; attempt < txMaxRetries; attempt++ {
		var committed []byte
		var changed bool

		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			old, err := tx.Get(ctx, path).Bytes()
			if err == redis.Nil {
				old = nil
			} else if err != nil {
				return err
			}

			next, err := fn(old)
			if err != nil {
				return err
			}

			// no-op: документ не трогаем, WATCH снимается сам
			if next == nil || bytes.Equal(old, next) {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, path, next, 0)
				return nil
			})
			if err == nil {
				committed = next
				changed = true
			}
			return err
		}, path)

		if err == redis.TxFailedErr {
			// кто-то закоммитился между GET и EXEC — перечитываем и повторяем
			metrics.TxRetries.Inc()
			logger.Debug("transaction conflict, retrying", "path", path, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return fmt.Errorf("transact %s: %w", path, err)
		}

		// подписчики получают полное новое значение, как при on('value')
		if changed {
			if err := s.rdb.Publish(ctx, channelFor(path), committed).Err(); err != nil {
				logger.Warn("publish after commit failed", "path", path, "error", err)
			}
		}
		return nil
	}
	return fmt.Errorf("transact %s: %w", path, ErrTxRetryLimit)
}

func (s *RedisStore) Subscribe(ctx context.Context, path string) (<-chan []byte, error) {
	pubsub := s.rdb.Subscribe(ctx, channelFor(path))
	// дожидаемся подтверждения подписки, чтобы не потерять коммиты
	// между начальным снапшотом и началом приёма
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	out := make(chan []byte, subscribeBuffer)

	// начальный снапшот, как once('value') перед on('value')
	if raw, err := s.rdb.Get(ctx, path).Bytes(); err == nil {
		out <- raw
	} else if err != redis.Nil {
		logger.Warn("initial snapshot read failed", "path", path, "error", err)
	}

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func channelFor(path string) string {
	return path + ":changes"
}
