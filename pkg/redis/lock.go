package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock is held by another instance")

const releaseScriptName = "lock_release"

// compare-and-delete: only the token that took the lock may release it
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Lock is a single-holder lock backed by SET NX PX
type Lock struct {
	client *Client
	key    string
	token  string
}

// LockKey builds the key used for a named batch job
func LockKey(name string) string {
	return fmt.Sprintf("job:lock:%s", name)
}

// AcquireLock takes key for ttl. It returns ErrLockHeld when the key exists.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: c, key: key, token: token}, nil
}

// Release drops the lock if this holder still owns it. Releasing an
// expired or stolen lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.client.EvalWithFallback(ctx, releaseScriptName, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// Key returns the locked key
func (l *Lock) Key() string {
	return l.key
}
