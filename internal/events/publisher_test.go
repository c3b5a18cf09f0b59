package events

import (
	"context"
	"testing"
	"time"

	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRecordedMessageJSON(t *testing.T) {
	rec := models.TransactionRecord{
		ID:          "tx-1",
		Type:        models.TransactionPayment,
		Amount:      money.New(-2000, "USD"),
		Date:        time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		Status:      models.StatusCompleted,
		Description: "Moved to envelope Travel",
		EnvelopeID:  "env-1",
	}

	msg := NewTransactionRecordedMessage("user-1", rec)
	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"transaction.recorded"`)
	assert.Contains(t, string(data), `"amount":{"amount":"-20.00","currency":"USD"}`)

	back, err := TransactionRecordedMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "user-1", back.UserID)
	assert.Equal(t, rec, back.Transaction)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishTransactionRecorded(context.Background(), "u", models.TransactionRecord{}))
	assert.NoError(t, p.Close())
}
