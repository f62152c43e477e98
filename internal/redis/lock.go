package redisclient

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker is used by the appointment service to guard critical sections per slot.
// A slot key identifies one (doctor, date, time) tuple.
type Locker interface {
	WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker that uses a per slot Redis key
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:slot:%s", slot)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release even when ctx was cancelled inside fn
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

const localPartitions = 256

// localSlotLocker is a partitioned mutex for single node deployments.
// Slot keys hash onto a fixed set of partitions, so unrelated slots may
// occasionally share a partition.
type localSlotLocker struct {
	partitions [localPartitions]chan struct{}
	ttl        time.Duration
}

func NewLocalSlotLocker(ttl time.Duration) Locker {
	l := &localSlotLocker{ttl: ttl}
	for i := range l.partitions {
		l.partitions[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error {
	h := fnv.New32a()
	_, _ = h.Write([]byte(slot))
	p := l.partitions[h.Sum32()%localPartitions]

	select {
	case p <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquire slot lock: %w", ctx.Err())
	}
	defer func() { <-p }()

	if l.ttl <= 0 {
		return fn(ctx)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}
