package dispatch

import (
	"context"
	"fmt"
	"testing"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBulkMixedOutcomes(t *testing.T) {
	db := newTestDB(t)
	seedOnboardedBusiness(t, db, "biz-1")
	b := NewBulkOrchestrator(NewDispatcher(db, &fakeSender{messageID: "wamid.bulk"}), 3)

	recipients := []string{"+1234567890", "not-a-number", "+1987654321"}
	result, err := b.SendBulk(context.Background(), "biz-1", recipients, textPayload("bulk hello"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)

	// Results keep the input order regardless of worker scheduling.
	for i, r := range result.Results {
		assert.Equal(t, recipients[i], r.Recipient, "result %d out of order", i)
	}
	assert.Equal(t, models.MessageStatusSent, result.Results[0].Status)
	assert.Equal(t, models.MessageStatusFailed, result.Results[1].Status)
	assert.NotEmpty(t, result.Results[1].ErrorMessage)
	assert.Equal(t, models.MessageStatusSent, result.Results[2].Status)

	// Every recipient got a persisted record, invalid ones included.
	var count int64
	require.NoError(t, db.Model(&models.OutboundMessage{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestSendBulkInputValidation(t *testing.T) {
	db := newTestDB(t)
	seedOnboardedBusiness(t, db, "biz-1")
	b := NewBulkOrchestrator(NewDispatcher(db, &fakeSender{messageID: "wamid.1"}), 3)

	var validation *apperrors.ValidationError

	_, err := b.SendBulk(context.Background(), "biz-1", nil, textPayload("x"))
	require.ErrorAs(t, err, &validation)

	tooMany := make([]string, MaxBulkRecipients+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("+12345678%02d", i%100)
	}
	_, err = b.SendBulk(context.Background(), "biz-1", tooMany, textPayload("x"))
	require.ErrorAs(t, err, &validation)

	_, err = b.SendBulk(context.Background(), "biz-1", []string{"+1234567890"}, Payload{})
	require.ErrorAs(t, err, &validation)
}

func TestSendBulkRequiresOnboarding(t *testing.T) {
	db := newTestDB(t)
	b := NewBulkOrchestrator(NewDispatcher(db, &fakeSender{}), 3)

	_, err := b.SendBulk(context.Background(), "ghost", []string{"+1234567890"}, textPayload("x"))
	var notOnboarded *apperrors.NotOnboardedError
	require.ErrorAs(t, err, &notOnboarded)
}

func TestSendBulkMoreRecipientsThanWorkers(t *testing.T) {
	db := newTestDB(t)
	seedOnboardedBusiness(t, db, "biz-1")
	sender := &fakeSender{messageID: "wamid.n"}
	b := NewBulkOrchestrator(NewDispatcher(db, sender), 2)

	recipients := make([]string, 20)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("+12345678%03d", i)
	}

	result, err := b.SendBulk(context.Background(), "biz-1", recipients, textPayload("x"))
	require.NoError(t, err)
	assert.Equal(t, 20, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 20, sender.callCount())
}
