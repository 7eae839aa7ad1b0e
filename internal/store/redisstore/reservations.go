// Package redisstore holds the Redis-backed stores: TTL-bound reservations
// and per-user cart documents.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
)

const (
	reservationKeyPrefix = "reservation:"
	scanBatchSize        = 100
)

// ReservationStore implements stockledger.ReservationStore on Redis. Redis
// owns expiry: a key vanishing at TTL is exactly how a reservation lapses,
// no application timer involved.
type ReservationStore struct {
	client *redis.Client
}

// NewReservationStore wraps a Redis client.
func NewReservationStore(client *redis.Client) *ReservationStore {
	return &ReservationStore{client: client}
}

type reservationDocument struct {
	Quantity         int64 `json:"quantity"`
	ExpiresAtUnixUTC int64 `json:"expiresAtUnixUtc"`
}

// Put writes the reservation under its composite key with the given TTL.
// Rewriting an existing key resets the TTL, which is what a reservation
// update wants.
func (store *ReservationStore) Put(ctx context.Context, reservation stockledger.Reservation, ttl time.Duration) error {
	body, err := json.Marshal(reservationDocument{
		Quantity:         reservation.Quantity().Int64(),
		ExpiresAtUnixUTC: reservation.ExpiresAtUnixUTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal reservation: %w", err)
	}
	return store.client.Set(ctx, reservationKey(reservation.ID()), body, ttl).Err()
}

// Get loads a reservation, reporting ErrUnknownReservation once the key has
// expired or was deleted.
func (store *ReservationStore) Get(ctx context.Context, id stockledger.ReservationID) (stockledger.Reservation, error) {
	body, err := store.client.Get(ctx, reservationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stockledger.Reservation{}, stockledger.ErrUnknownReservation
	}
	if err != nil {
		return stockledger.Reservation{}, err
	}
	return decodeReservation(id, body)
}

// Delete removes a reservation key, mapping a missing key to ErrUnknownReservation.
func (store *ReservationStore) Delete(ctx context.Context, id stockledger.ReservationID) error {
	deleted, err := store.client.Del(ctx, reservationKey(id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return stockledger.ErrUnknownReservation
	}
	return nil
}

// ListByProduct scans for every live reservation of one product. SCAN walks
// the keyspace non-blockingly; keys expiring mid-scan simply drop out of the
// result, which the sweeper tolerates.
func (store *ReservationStore) ListByProduct(ctx context.Context, productID stockledger.ProductID) ([]stockledger.Reservation, error) {
	pattern := reservationKeyPrefix + "*:" + productID.String()
	var reservations []stockledger.Reservation
	var cursor uint64
	for {
		keys, next, err := store.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			id, err := stockledger.ParseReservationID(key[len(reservationKeyPrefix):])
			if err != nil {
				continue
			}
			reservation, err := store.Get(ctx, id)
			if errors.Is(err, stockledger.ErrUnknownReservation) {
				continue
			}
			if err != nil {
				return nil, err
			}
			reservations = append(reservations, reservation)
		}
		cursor = next
		if cursor == 0 {
			return reservations, nil
		}
	}
}

func reservationKey(id stockledger.ReservationID) string {
	return reservationKeyPrefix + id.String()
}

func decodeReservation(id stockledger.ReservationID, body []byte) (stockledger.Reservation, error) {
	var document reservationDocument
	if err := json.Unmarshal(body, &document); err != nil {
		return stockledger.Reservation{}, fmt.Errorf("decode reservation %s: %w", id.String(), err)
	}
	quantity, err := stockledger.NewQuantity(document.Quantity)
	if err != nil {
		return stockledger.Reservation{}, err
	}
	return stockledger.NewReservation(id, quantity, document.ExpiresAtUnixUTC)
}
