package stripewebhook

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcGrol/stripeshop/lib/mytime"
)

func TestJournal(t *testing.T) {
	c := context.TODO()
	journal, cleanup, err := NewJournal("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer cleanup()

	t.Run("Unknown event is not handled", func(t *testing.T) {
		handled, err := journal.IsHandled(c, "evt_unknown")
		assert.NoError(t, err)
		assert.False(t, handled)
	})

	t.Run("Failed event is retried", func(t *testing.T) {
		// given
		err := journal.Record(c, WebhookEvent{
			EventID:    "evt_1",
			EventType:  "charge.refunded",
			Outcome:    OutcomeFailed,
			Attempts:   1,
			LastError:  "boom",
			ReceivedAt: mytime.ExampleTime,
			UpdatedAt:  mytime.ExampleTime,
		})
		assert.NoError(t, err)

		// when
		handled, err := journal.IsHandled(c, "evt_1")

		// then
		assert.NoError(t, err)
		assert.False(t, handled)
	})

	t.Run("Redelivery updates outcome and counts attempts", func(t *testing.T) {
		// when
		err := journal.Record(c, WebhookEvent{
			EventID:    "evt_1",
			EventType:  "charge.refunded",
			Outcome:    OutcomeHandled,
			Attempts:   1,
			ReceivedAt: mytime.ExampleTime.Add(time.Minute),
			UpdatedAt:  mytime.ExampleTime.Add(time.Minute),
		})
		assert.NoError(t, err)

		// then
		handled, err := journal.IsHandled(c, "evt_1")
		assert.NoError(t, err)
		assert.True(t, handled)

		events, err := journal.Recent(c, 10)
		assert.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, 2, events[0].Attempts)
		assert.Empty(t, events[0].LastError)
		assert.True(t, mytime.ExampleTime.Equal(events[0].ReceivedAt))
	})

	t.Run("Unhandled type counts as handled", func(t *testing.T) {
		// given
		err := journal.Record(c, WebhookEvent{
			EventID:    "evt_2",
			EventType:  "customer.created",
			Outcome:    OutcomeUnhandled,
			Attempts:   1,
			ReceivedAt: mytime.ExampleTime.Add(time.Hour),
			UpdatedAt:  mytime.ExampleTime.Add(time.Hour),
		})
		assert.NoError(t, err)

		// when
		handled, err := journal.IsHandled(c, "evt_2")

		// then
		assert.NoError(t, err)
		assert.True(t, handled)

		events, err := journal.Recent(c, 1)
		assert.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, "evt_2", events[0].EventID)
	})

	t.Run("Unsupported driver", func(t *testing.T) {
		_, _, err := NewJournal("postgres", "")
		assert.Error(t, err)
	})
}
