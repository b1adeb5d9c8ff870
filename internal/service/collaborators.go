package service

import (
	"context"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/store"
)

// Catalog resolves products for price snapshotting and existence checks.
// The catalog itself is outside this core; only this view of it is consumed.
type Catalog interface {
	FindProduct(ctx context.Context, productID string) (*models.Product, error)
	FindProducts(ctx context.Context, productIDs []string) (map[string]*models.Product, error)
}

// CartItem is one entry of a user's cart at order-creation time.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart is read when an order is created and cleared after the order commits.
type Cart interface {
	GetCart(ctx context.Context, userID string) ([]CartItem, error)
	ClearCart(ctx context.Context, userID string) error
}

// storeCatalog resolves products from the shared database.
type storeCatalog struct {
	store *store.Store
}

// NewStoreCatalog creates a catalog backed by the products table.
func NewStoreCatalog(s *store.Store) Catalog {
	return &storeCatalog{store: s}
}

func (c *storeCatalog) FindProduct(ctx context.Context, productID string) (*models.Product, error) {
	return c.store.GetProductByID(ctx, productID)
}

func (c *storeCatalog) FindProducts(ctx context.Context, productIDs []string) (map[string]*models.Product, error) {
	products, err := c.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for _, id := range productIDs {
		if _, ok := byID[id]; !ok {
			return nil, apperr.NotFound("product not found: %s", id)
		}
	}
	return byID, nil
}

// redisCart reads carts maintained by the storefront in Redis.
type redisCart struct {
	redis *redisclient.Client
}

// NewRedisCart creates a cart collaborator backed by Redis.
func NewRedisCart(c *redisclient.Client) Cart {
	return &redisCart{redis: c}
}

func (c *redisCart) GetCart(ctx context.Context, userID string) ([]CartItem, error) {
	entries, err := c.redis.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]CartItem, 0, len(entries))
	for productID, qty := range entries {
		items = append(items, CartItem{ProductID: productID, Quantity: qty})
	}
	return items, nil
}

func (c *redisCart) ClearCart(ctx context.Context, userID string) error {
	return c.redis.ClearCart(ctx, userID)
}
