package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microfin-loan-servicing/internal/domain/audit"
)

func TestNewMessage(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		event := &audit.Event{
			ID:         uuid.New(),
			LoanID:     uuid.New(),
			Type:       audit.EventTypePaymentApplied,
			Payload:    json.RawMessage(`{"amount":"2500"}`),
			RecordedAt: time.Now().Add(-time.Minute),
		}

		beforeCreation := time.Now()
		msg, err := NewMessage(event)
		afterCreation := time.Now()

		require.NoError(t, err)
		require.NotNil(t, msg)

		assert.Equal(t, event.ID, msg.EventID)
		assert.Equal(t, event.LoanID, msg.LoanID)
		assert.Equal(t, StatusPending, msg.Status)
		assert.Equal(t, 0, msg.Attempts)
		assert.Nil(t, msg.LastAttemptAt)
		assert.WithinDuration(t, beforeCreation, msg.CreatedAt, afterCreation.Sub(beforeCreation)+time.Millisecond)

		// Check payload
		var decodedEvent audit.Event
		err = json.Unmarshal(msg.Payload, &decodedEvent)
		require.NoError(t, err)
		assert.Equal(t, event.ID, decodedEvent.ID)
		assert.Equal(t, event.Type, decodedEvent.Type)
	})
}

func TestMessage_IncrementAttempts(t *testing.T) {
	t.Run("SuccessfulIncrement", func(t *testing.T) {
		initialTime := time.Now().Add(-time.Hour)
		msg := &Message{
			Attempts:      1,
			LastAttemptAt: &initialTime,
		}
		initialAttempts := msg.Attempts

		time.Sleep(10 * time.Millisecond) // Ensure time changes
		beforeUpdate := time.Now()
		msg.IncrementAttempts()
		afterUpdate := time.Now()

		assert.Equal(t, initialAttempts+1, msg.Attempts)
		require.NotNil(t, msg.LastAttemptAt)
		assert.True(t, msg.LastAttemptAt.After(initialTime))
		assert.WithinDuration(t, beforeUpdate, *msg.LastAttemptAt, afterUpdate.Sub(beforeUpdate)+time.Millisecond)
	})
}

func TestMessage_MarkAsProcessed(t *testing.T) {
	t.Run("SuccessfulMarkAsProcessed", func(t *testing.T) {
		initialTime := time.Now().Add(-time.Hour)
		msg := &Message{
			Status:        StatusPending,
			LastAttemptAt: &initialTime,
		}
		time.Sleep(10 * time.Millisecond) // Ensure time changes
		beforeUpdate := time.Now()
		msg.MarkAsProcessed()
		afterUpdate := time.Now()

		assert.Equal(t, StatusProcessed, msg.Status)
		require.NotNil(t, msg.LastAttemptAt)
		assert.True(t, msg.LastAttemptAt.After(initialTime))
		assert.WithinDuration(t, beforeUpdate, *msg.LastAttemptAt, afterUpdate.Sub(beforeUpdate)+time.Millisecond)
	})
}

func TestMessage_MarkAsFailed(t *testing.T) {
	t.Run("SuccessfulMarkAsFailed", func(t *testing.T) {
		initialTime := time.Now().Add(-time.Hour)
		msg := &Message{
			Status:        StatusPending,
			LastAttemptAt: &initialTime,
		}
		time.Sleep(10 * time.Millisecond) // Ensure time changes
		beforeUpdate := time.Now()
		msg.MarkAsFailed()
		afterUpdate := time.Now()

		assert.Equal(t, StatusFailedToPublish, msg.Status)
		require.NotNil(t, msg.LastAttemptAt)
		assert.True(t, msg.LastAttemptAt.After(initialTime))
		assert.WithinDuration(t, beforeUpdate, *msg.LastAttemptAt, afterUpdate.Sub(beforeUpdate)+time.Millisecond)
	})
}

func TestMessage_GetEvent(t *testing.T) {
	t.Run("SuccessfulGetEvent", func(t *testing.T) {
		originalEvent := &audit.Event{
			ID:         uuid.New(),
			LoanID:     uuid.New(),
			Type:       audit.EventTypeStatusChanged,
			Payload:    json.RawMessage(`{"from":"ACTIVE","to":"OVERDUE"}`),
			RecordedAt: time.Now().Truncate(time.Millisecond), // Truncate for consistent comparison
		}
		payload, err := json.Marshal(originalEvent)
		require.NoError(t, err)

		msg := &Message{Payload: payload}
		decodedEvent, err := msg.GetEvent()

		require.NoError(t, err)
		require.NotNil(t, decodedEvent)
		assert.Equal(t, originalEvent.ID, decodedEvent.ID)
		assert.Equal(t, originalEvent.LoanID, decodedEvent.LoanID)
		assert.Equal(t, originalEvent.Type, decodedEvent.Type)
		assert.Equal(t, originalEvent.Payload, decodedEvent.Payload)
		assert.True(t, originalEvent.RecordedAt.Equal(decodedEvent.RecordedAt), "RecordedAt should match")
	})
}
