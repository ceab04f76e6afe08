package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/order"
)

const (
	lockKeyPrefix      = "lock:order:"
	defaultLockTTL     = 30 * time.Second
	defaultLockBackoff = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ order.Locker = (*Locker)(nil)

// Locker is an order.Locker shared by every API instance using the same
// Redis. A lock expires after its TTL if the holder dies.
type Locker struct {
	client  redis.Cmdable
	ttl     time.Duration
	backoff time.Duration
}

// NewLocker creates a Locker. A non-positive ttl selects the default.
func NewLocker(client redis.Cmdable, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{client: client, ttl: ttl, backoff: defaultLockBackoff}
}

// Lock blocks until the order's lock is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, orderID int64) (func(), error) {
	key := lockKeyPrefix + strconv.FormatInt(orderID, 10)
	token := uuid.NewString()

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}

		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire %s", key)
		}
		if ok {
			break
		}
		t.Reset(l.backoff)
	}

	return func() {
		// The caller's context may already be cancelled.
		ctx := context.WithoutCancel(ctx)
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			zctx.From(ctx).Warn("Release order lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
