package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants per-source run exclusion across orchestrator processes
// (spec.md §5, "more than one orchestrator process must not run the same
// source concurrently"), the same SET NX / token-ownership pattern the
// teacher's WorkerQueueService uses for job processing state in Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

const lockKeyPrefix = "feedrelay:source-lock:"

// Acquire takes an exclusive, TTL-bounded lock on source. ok is false if
// another process already holds it. The returned token must be passed to
// Release so a process can never release a lock it doesn't own (e.g. after
// its own lock expired and was reacquired by someone else).
func (l *Locker) Acquire(ctx context.Context, source string) (token string, ok bool, err error) {
	token = uuid.New().String()
	key := lockKeyPrefix + source

	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock for %s: %w", source, err)
	}
	return token, ok, nil
}

// releaseScript only deletes the key if it still holds our token, so a
// slow run whose lock already expired can't delete a newer holder's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

func (l *Locker) Release(ctx context.Context, source, token string) error {
	key := lockKeyPrefix + source
	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release lock for %s: %w", source, err)
	}
	return nil
}
