// Package redis keeps the sequential site-name counters in Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/couchcryptid/site-registry/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// incrementScript increments KEYS[1] only if it exists and returns -1 otherwise.
var incrementScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("INCR", KEYS[1])
`)

// Counter implements domain.CounterStore.
type Counter struct {
	client *goredis.Client
}

// NewCounter creates a counter store connected to addr.
func NewCounter(addr string) *Counter {
	return &Counter{client: goredis.NewClient(&goredis.Options{Addr: addr})}
}

// NewCounterFromClient wraps an existing client.
func NewCounterFromClient(client *goredis.Client) *Counter {
	return &Counter{client: client}
}

// IncrementCounter atomically increments the tenant's counter.
func (c *Counter) IncrementCounter(ctx context.Context, tenant, key string) (int64, error) {
	v, err := incrementScript.Run(ctx, c.client, []string{counterKey(tenant, key)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	if v < 0 {
		return 0, domain.ErrCounterMissing
	}
	return v, nil
}

// ProvisionCounter sets the counter to start unless it already exists.
func (c *Counter) ProvisionCounter(ctx context.Context, tenant, key string, start int64) error {
	if err := c.client.SetNX(ctx, counterKey(tenant, key), start, 0).Err(); err != nil {
		return fmt.Errorf("provision counter: %w", err)
	}
	return nil
}

func (c *Counter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Counter) Close() error {
	return c.client.Close()
}

func counterKey(tenant, key string) string {
	return "counter:" + tenant + ":" + key
}
