package mypubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionName(t *testing.T) {
	name, err := subscriptionName("order", "https://shop.example.com/api/orders/history/event")
	assert.NoError(t, err)
	assert.Equal(t, "order-api-orders-history-event-push", name)

	_, err = subscriptionName("order", "://missing-scheme")
	assert.Error(t, err)
}
