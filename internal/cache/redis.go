package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/TemirB/orderfeed/internal/domain"
)

// putScript writes the order into the shop hash and appends its id to the
// insertion-order list only when the field is new. Returns 1 when created.
var putScript = redis.NewScript(`
local created = redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if created == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return created
`)

// Redis stores each shop as a hash orders:<shop> (id -> json) plus a list
// orders:<shop>:ids holding insertion order.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func hashKey(shopID string) string { return "orders:" + shopID }
func listKey(shopID string) string { return "orders:" + shopID + ":ids" }

func (c *Redis) Put(ctx context.Context, order domain.Order) (bool, error) {
	if err := validate(order); err != nil {
		return false, err
	}
	data, err := json.Marshal(order)
	if err != nil {
		return false, fmt.Errorf("marshal order: %w", err)
	}

	n, err := putScript.Run(ctx, c.client,
		[]string{hashKey(order.ShopID), listKey(order.ShopID)},
		order.ID, data, c.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("put order in redis: %w", err)
	}
	return n == 1, nil
}

func (c *Redis) Get(ctx context.Context, shopID, id string) (domain.Order, error) {
	data, err := c.client.HGet(ctx, hashKey(shopID), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order from redis: %w", err)
	}

	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order: %w", err)
	}
	return o, nil
}

func (c *Redis) List(ctx context.Context, shopID string) ([]domain.Order, error) {
	ids, err := c.client.LRange(ctx, listKey(shopID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list order ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Order{}, nil
	}

	vals, err := c.client.HMGet(ctx, hashKey(shopID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	out := make([]domain.Order, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var o domain.Order
		if err := json.Unmarshal([]byte(s), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", ids[i], err)
		}
		out = append(out, o)
	}
	return out, nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}
