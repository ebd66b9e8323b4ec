package orders

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestItemsMetadata(t *testing.T) {

	t.Run("Small cart fits a single value", func(t *testing.T) {
		// given
		items := []Item{
			{ProductID: "p1", Name: "Tennis racket", PriceInCents: 23000, Quantity: 1, Image: "https://img/p1.png"},
			{ProductID: "p2", Name: "Tennis balls", PriceInCents: 999, Quantity: 3},
		}

		// when
		metadata, err := EncodeItemsMetadata(items)

		// then
		assert.NoError(t, err)
		assert.Equal(t, `[{"productId":"p1","name":"Tennis racket","price":230,"quantity":1,"image":"https://img/p1.png"},{"productId":"p2","name":"Tennis balls","price":9.99,"quantity":3}]`, metadata["items"])
		assert.NotContains(t, metadata, "items_images_omitted")

		decoded, ok, err := DecodeItemsMetadata(metadata)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, items, decoded)
	})

	t.Run("Images are dropped before splitting", func(t *testing.T) {
		// given
		items := []Item{}
		for i := 0; i < 4; i++ {
			items = append(items, Item{
				ProductID:    fmt.Sprintf("p%d", i),
				Name:         "Shoe",
				PriceInCents: 5000,
				Quantity:     1,
				Image:        "https://images.example.com/" + strings.Repeat("x", 100),
			})
		}

		// when
		metadata, err := EncodeItemsMetadata(items)

		// then
		assert.NoError(t, err)
		assert.Equal(t, "true", metadata["items_images_omitted"])
		assert.NotContains(t, metadata, "items_chunks")

		decoded, ok, err := DecodeItemsMetadata(metadata)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, decoded, 4)
		assert.Empty(t, decoded[0].Image)
	})

	t.Run("Large cart is split over chunks", func(t *testing.T) {
		// given
		items := []Item{}
		for i := 0; i < 30; i++ {
			items = append(items, Item{
				ProductID:    fmt.Sprintf("product-%d", i),
				Name:         fmt.Sprintf("Crème brûlée nummer %d", i),
				PriceInCents: int64(100 + i),
				Quantity:     2,
			})
		}

		// when
		metadata, err := EncodeItemsMetadata(items)

		// then
		assert.NoError(t, err)
		assert.NotContains(t, metadata, "items")
		assert.NotEmpty(t, metadata["items_chunks"])
		for key, value := range metadata {
			assert.LessOrEqual(t, utf8.RuneCountInString(value), 500, key)
			assert.True(t, utf8.ValidString(value), key)
		}

		decoded, ok, err := DecodeItemsMetadata(metadata)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, items, decoded)
	})

	t.Run("Missing items", func(t *testing.T) {
		// when
		decoded, ok, err := DecodeItemsMetadata(map[string]string{"customerEmail": "a@b.c"})

		// then
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, decoded)
	})

	t.Run("Malformed items", func(t *testing.T) {
		// when
		decoded, ok, err := DecodeItemsMetadata(map[string]string{"items": `[{"name":"x"`})

		// then
		assert.Error(t, err)
		assert.False(t, ok)
		assert.Empty(t, decoded)
	})

	t.Run("Items violating the schema", func(t *testing.T) {
		// when
		_, ok, err := DecodeItemsMetadata(map[string]string{"items": `[{"name":"x","price":-1,"quantity":0}]`})

		// then
		assert.Error(t, err)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "does not conform to schema")
	})

	t.Run("Missing chunk", func(t *testing.T) {
		// when
		_, ok, err := DecodeItemsMetadata(map[string]string{"items_chunks": "2", "items_0": "[]"})

		// then
		assert.Error(t, err)
		assert.False(t, ok)
	})
}
