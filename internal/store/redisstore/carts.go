package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MarkoPoloResearchLab/electroshop/internal/cart"
)

const cartKeyPrefix = "cart:"

// CartStore implements cart.Store as one JSON document per user. Carts carry
// no TTL of their own; the stock holds inside them expire instead.
type CartStore struct {
	client *redis.Client
}

// NewCartStore wraps a Redis client.
func NewCartStore(client *redis.Client) *CartStore {
	return &CartStore{client: client}
}

func (store *CartStore) Get(ctx context.Context, userID string) (cart.Cart, error) {
	body, err := store.client.Get(ctx, cartKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.Cart{}, cart.ErrUnknownCart
	}
	if err != nil {
		return cart.Cart{}, err
	}
	var document cart.Cart
	if err := json.Unmarshal(body, &document); err != nil {
		return cart.Cart{}, fmt.Errorf("decode cart %s: %w", userID, err)
	}
	return document, nil
}

func (store *CartStore) Save(ctx context.Context, document cart.Cart) error {
	body, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshal cart %s: %w", document.UserID, err)
	}
	return store.client.Set(ctx, cartKeyPrefix+document.UserID, body, 0).Err()
}

func (store *CartStore) Delete(ctx context.Context, userID string) error {
	return store.client.Del(ctx, cartKeyPrefix+userID).Err()
}
