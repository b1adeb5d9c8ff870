package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"commerce-core/internal/models"

	"github.com/go-redis/redis/v8"
)

// Client wraps Redis for the strictly non-authoritative concerns: idempotency
// response replay, an inventory read-through snapshot, and the cart
// collaborator. The database row under lock stays the single source of truth;
// mutating transactions never consult this cache.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetIdempotentResponse returns the response body cached under an idempotency
// key, or "" when the key is unknown.
func (c *Client) GetIdempotentResponse(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, "idempotency:"+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetIdempotentResponse caches the response body for an idempotency key until
// the retention window elapses.
func (c *Client) SetIdempotentResponse(ctx context.Context, key, body string, ttl time.Duration) error {
	return c.rdb.Set(ctx, "idempotency:"+key, body, ttl).Err()
}

// GetInventorySnapshot returns a cached inventory view, or nil on miss.
func (c *Client) GetInventorySnapshot(ctx context.Context, productID string) (*models.Inventory, error) {
	val, err := c.rdb.Get(ctx, "inventory:"+productID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var inv models.Inventory
	if err := json.Unmarshal([]byte(val), &inv); err != nil {
		return nil, fmt.Errorf("corrupt inventory snapshot: %w", err)
	}
	return &inv, nil
}

// SetInventorySnapshot caches an inventory view for read paths.
func (c *Client) SetInventorySnapshot(ctx context.Context, inv *models.Inventory, ttl time.Duration) error {
	body, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, "inventory:"+inv.ProductID, body, ttl).Err()
}

// InvalidateInventorySnapshot drops the cached view after a mutation commits.
func (c *Client) InvalidateInventorySnapshot(ctx context.Context, productID string) error {
	return c.rdb.Del(ctx, "inventory:"+productID).Err()
}

// GetCart returns the product id to quantity entries of a user's cart.
func (c *Client) GetCart(ctx context.Context, userID string) (map[string]int, error) {
	entries, err := c.rdb.HGetAll(ctx, "cart:"+userID).Result()
	if err != nil {
		return nil, err
	}

	items := make(map[string]int, len(entries))
	for productID, raw := range entries {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart entry for product %s: %w", productID, err)
		}
		items[productID] = qty
	}
	return items, nil
}

// AddCartItem sets the quantity for a product in a user's cart.
func (c *Client) AddCartItem(ctx context.Context, userID, productID string, quantity int) error {
	return c.rdb.HSet(ctx, "cart:"+userID, productID, quantity).Err()
}

// ClearCart removes a user's cart.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, "cart:"+userID).Err()
}
