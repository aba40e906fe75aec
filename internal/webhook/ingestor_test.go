package webhook

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"waba-gateway/internal/database"
	"waba-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestIngestor(t *testing.T) (*Ingestor, *gorm.DB) {
	t.Helper()
	db, err := database.ConnectTest()
	require.NoError(t, err)
	return NewIngestor(db), db
}

func seedBusiness(t *testing.T, db *gorm.DB, phoneNumberID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.BusinessAccount{
		BusinessID:    "biz-1",
		Status:        models.OnboardingFinished,
		PhoneNumberID: phoneNumberID,
		AccessToken:   "tok",
	}).Error)
}

func messagePayload(messageID, phoneNumberID string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550001111", "phone_number_id": %q},
					"messages": [{"id": %q, "from": "15552223333", "type": "text", "text": {"body": "hi"}}]
				}
			}]
		}]
	}`, phoneNumberID, messageID))
}

func statusPayload(messageID, status, phoneNumberID string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550001111", "phone_number_id": %q},
					"statuses": [{"id": %q, "status": %q, "recipient_id": "15552223333"}]
				}
			}]
		}]
	}`, phoneNumberID, messageID, status))
}

func TestIngestInboundMessage(t *testing.T) {
	ing, db := newTestIngestor(t)
	seedBusiness(t, db, "2000000000002")

	record, err := ing.Ingest(context.Background(), messagePayload("wamid.in.1", "2000000000002"))
	require.NoError(t, err)
	assert.True(t, record.Processed)
	assert.Equal(t, "wamid.in.1", record.WebhookID)
	assert.Equal(t, "message", record.EventType)
	assert.Equal(t, "biz-1", record.BusinessID)
	assert.Empty(t, record.ProcessingError)
}

func TestIngestDuplicateIsIdempotent(t *testing.T) {
	ing, db := newTestIngestor(t)
	seedBusiness(t, db, "2000000000002")

	first, err := ing.Ingest(context.Background(), messagePayload("wamid.in.1", "2000000000002"))
	require.NoError(t, err)
	require.True(t, first.Processed)

	second, err := ing.Ingest(context.Background(), messagePayload("wamid.in.1", "2000000000002"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.WebhookRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeliveryAndReadReceiptsAreDistinctEvents(t *testing.T) {
	ing, db := newTestIngestor(t)
	seedBusiness(t, db, "2000000000002")

	delivered, err := ing.Ingest(context.Background(), statusPayload("wamid.out.1", "delivered", "2000000000002"))
	require.NoError(t, err)
	read, err := ing.Ingest(context.Background(), statusPayload("wamid.out.1", "read", "2000000000002"))
	require.NoError(t, err)

	// Same message id, but the receipts must not deduplicate each other.
	assert.NotEqual(t, delivered.WebhookID, read.WebhookID)
	assert.Equal(t, "status", delivered.EventType)

	var count int64
	require.NoError(t, db.Model(&models.WebhookRecord{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestMalformedPayloadIsStoredNotRejected(t *testing.T) {
	ing, db := newTestIngestor(t)

	record, err := ing.Ingest(context.Background(), []byte(`{"entry": "this is not a list"`))
	require.NoError(t, err)
	assert.False(t, record.Processed)
	assert.Contains(t, record.ProcessingError, "malformed payload")

	var stored models.WebhookRecord
	require.NoError(t, db.First(&stored, record.ID).Error)
	assert.False(t, stored.Processed)
}

func TestTruncatedPayloadDoesNotShadowWellFormedDelivery(t *testing.T) {
	ing, db := newTestIngestor(t)
	seedBusiness(t, db, "2000000000002")

	full := messagePayload("wamid.in.1", "2000000000002")
	// Truncation after the message id parsed: the partial decode must not
	// claim the id as its dedup key.
	truncated := bytes.TrimRight(full, "}] \t\n")

	parked, err := ing.Ingest(context.Background(), truncated)
	require.NoError(t, err)
	assert.False(t, parked.Processed)
	assert.Len(t, parked.WebhookID, 64)

	processed, err := ing.Ingest(context.Background(), full)
	require.NoError(t, err)
	assert.True(t, processed.Processed)
	assert.Equal(t, "wamid.in.1", processed.WebhookID)
	assert.NotEqual(t, parked.ID, processed.ID)

	var count int64
	require.NoError(t, db.Model(&models.WebhookRecord{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestUnknownPhoneNumberIsParked(t *testing.T) {
	ing, _ := newTestIngestor(t)

	record, err := ing.Ingest(context.Background(), messagePayload("wamid.in.9", "9999999999999"))
	require.NoError(t, err)
	assert.False(t, record.Processed)
	assert.Contains(t, record.ProcessingError, "no business for phone_number_id")
}

func TestUnprocessedDuplicateIsReprocessed(t *testing.T) {
	ing, db := newTestIngestor(t)

	// First delivery arrives before the business is onboarded and parks.
	first, err := ing.Ingest(context.Background(), messagePayload("wamid.in.1", "2000000000002"))
	require.NoError(t, err)
	require.False(t, first.Processed)

	seedBusiness(t, db, "2000000000002")

	// The provider retry gets a fresh processing attempt.
	second, err := ing.Ingest(context.Background(), messagePayload("wamid.in.1", "2000000000002"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Processed)
	assert.Equal(t, "biz-1", second.BusinessID)
}

func TestPayloadWithoutIdentifiersUsesContentHash(t *testing.T) {
	ing, db := newTestIngestor(t)

	raw := []byte(`{"object": "whatsapp_business_account", "entry": []}`)
	first, err := ing.Ingest(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, first.WebhookID, 64)

	_, err = ing.Ingest(context.Background(), raw)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.WebhookRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
