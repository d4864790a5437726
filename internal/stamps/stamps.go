// Package stamps ведёт общую версию обсуждения: счётчик, который растёт на каждой
// записи в хранилище. Экземпляры сервиса сверяют с ним свои снапшоты и так узнают
// о записях, прошедших мимо их кэша.
package stamps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stamps - минимальный контракт хранилища версий.
type Stamps interface {
	// Current возвращает текущую версию обсуждения (0, если записей ещё не было).
	Current(ctx context.Context, linkID uuid.UUID) (int64, error)
	// Bump увеличивает версию и возвращает новое значение.
	Bump(ctx context.Context, linkID uuid.UUID) (int64, error)
	// Close освобождает ресурсы.
	Close() error
}

type redisStamps struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой - используется "ctree:stamp:". ttl > 0 продлевает ключ на каждом Bump.
func NewRedis(ctx context.Context, redisURL, prefix string, ttl time.Duration) (Stamps, error) {
	const op = "stamps/NewRedis"

	if prefix == "" {
		prefix = "ctree:stamp:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &redisStamps{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (s *redisStamps) key(linkID uuid.UUID) string { return s.prefix + linkID.String() }

func (s *redisStamps) Current(ctx context.Context, linkID uuid.UUID) (int64, error) {
	const op = "stamps/redis/Current"

	v, err := s.rdb.Get(ctx, s.key(linkID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

// Bump: INCR и продление TTL одной транзакцией.
func (s *redisStamps) Bump(ctx context.Context, linkID uuid.UUID) (int64, error) {
	const op = "stamps/redis/Bump"

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, s.key(linkID))
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(linkID), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return incr.Val(), nil
}

func (s *redisStamps) Close() error { return s.rdb.Close() }

// Local - версии в памяти процесса. Подходит для одного экземпляра и для тестов.
type Local struct {
	mu sync.Mutex
	v  map[uuid.UUID]int64
}

// NewLocal создаёт пустое хранилище версий в памяти.
func NewLocal() *Local {
	return &Local{v: make(map[uuid.UUID]int64)}
}

func (l *Local) Current(_ context.Context, linkID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.v[linkID], nil
}

func (l *Local) Bump(_ context.Context, linkID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.v[linkID]++
	return l.v[linkID], nil
}

func (l *Local) Close() error { return nil }
