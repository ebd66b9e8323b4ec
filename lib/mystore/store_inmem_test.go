package mystore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type shipment struct {
	UID       string
	Carrier   string
	Weight    int64
	Delivered bool
	SentAt    time.Time
	Parcels   []string
}

var (
	baseTime = time.Date(2023, 2, 27, 23, 58, 59, 0, time.UTC)
	first    = shipment{UID: "a", Carrier: "dhl", Weight: 10, SentAt: baseTime, Parcels: []string{"p1"}}
	second   = shipment{UID: "b", Carrier: "ups", Weight: 30, Delivered: true, SentAt: baseTime.Add(time.Hour)}
	third    = shipment{UID: "c", Carrier: "dhl", Weight: 20, SentAt: baseTime.Add(-time.Hour)}
)

func TestStore(t *testing.T) {
	c := context.TODO()
	store, cleanup, err := NewInMemoryStore[shipment](c)
	assert.NoError(t, err)
	defer cleanup()

	t.Run("Get not found", func(t *testing.T) {
		_, found, err := store.Get(c, first.UID)
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Put", func(t *testing.T) {
		for _, s := range []shipment{first, second, third} {
			err = store.Put(c, s.UID, s)
			assert.NoError(t, err)
		}
	})

	t.Run("Get found", func(t *testing.T) {
		s, found, err := store.Get(c, first.UID)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, first, s)
	})

	t.Run("Returned values are copies", func(t *testing.T) {
		s, _, _ := store.Get(c, first.UID)
		s.Parcels[0] = "changed"

		again, _, _ := store.Get(c, first.UID)
		assert.Equal(t, "p1", again.Parcels[0])
	})

	t.Run("List in key order", func(t *testing.T) {
		all, err := store.List(c)
		assert.NoError(t, err)
		assert.Equal(t, []shipment{first, second, third}, all)
	})

	t.Run("Query equality", func(t *testing.T) {
		found, err := store.Query(c, []Filter{{Field: "Carrier", Compare: "=", Value: "dhl"}}, "")
		assert.NoError(t, err)
		assert.Equal(t, []shipment{first, third}, found)
	})

	t.Run("Query combined and ordered", func(t *testing.T) {
		found, err := store.Query(c, []Filter{
			{Field: "Weight", Compare: ">=", Value: 20},
			{Field: "Delivered", Compare: "=", Value: false},
		}, "SentAt")
		assert.NoError(t, err)
		assert.Equal(t, []shipment{third}, found)
	})

	t.Run("Query descending order", func(t *testing.T) {
		found, err := store.Query(c, nil, "-Weight")
		assert.NoError(t, err)
		assert.Equal(t, []shipment{second, third, first}, found)
	})

	t.Run("Query unknown field", func(t *testing.T) {
		_, err := store.Query(c, []Filter{{Field: "Color", Compare: "=", Value: "red"}}, "")
		assert.Error(t, err)
	})

	t.Run("Query unsupported operator", func(t *testing.T) {
		_, err := store.Query(c, []Filter{{Field: "Carrier", Compare: "~", Value: "dhl"}}, "")
		assert.Error(t, err)
	})
}

func TestTransaction(t *testing.T) {
	c := context.TODO()

	t.Run("Commit", func(t *testing.T) {
		store, _, _ := NewInMemoryStore[shipment](c)

		err := store.RunInTransaction(c, func(c context.Context) error {
			return store.Put(c, first.UID, first)
		})
		assert.NoError(t, err)

		_, found, _ := store.Get(c, first.UID)
		assert.True(t, found)
	})

	t.Run("Rollback on error", func(t *testing.T) {
		store, _, _ := NewInMemoryStore[shipment](c)
		_ = store.Put(c, first.UID, first)

		err := store.RunInTransaction(c, func(c context.Context) error {
			changed := first
			changed.Carrier = "fedex"
			_ = store.Put(c, first.UID, changed)
			_ = store.Put(c, second.UID, second)
			return fmt.Errorf("abort")
		})
		assert.Error(t, err)

		s, _, _ := store.Get(c, first.UID)
		assert.Equal(t, "dhl", s.Carrier)
		_, found, _ := store.Get(c, second.UID)
		assert.False(t, found)
	})

	t.Run("Nested transaction joins outer", func(t *testing.T) {
		store, _, _ := NewInMemoryStore[shipment](c)

		err := store.RunInTransaction(c, func(c context.Context) error {
			return store.RunInTransaction(c, func(c context.Context) error {
				return store.Put(c, first.UID, first)
			})
		})
		assert.NoError(t, err)

		_, found, _ := store.Get(c, first.UID)
		assert.True(t, found)
	})

	t.Run("Concurrent increments are serialized", func(t *testing.T) {
		store, _, _ := NewInMemoryStore[shipment](c)
		_ = store.Put(c, first.UID, shipment{UID: first.UID})

		done := make(chan error)
		for i := 0; i < 50; i++ {
			go func() {
				done <- store.RunInTransaction(c, func(c context.Context) error {
					s, _, err := store.Get(c, first.UID)
					if err != nil {
						return err
					}
					s.Weight++
					return store.Put(c, s.UID, s)
				})
			}()
		}
		for i := 0; i < 50; i++ {
			assert.NoError(t, <-done)
		}

		s, _, _ := store.Get(c, first.UID)
		assert.Equal(t, int64(50), s.Weight)
	})
}
