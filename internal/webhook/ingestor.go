package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"waba-gateway/internal/log"
	"waba-gateway/internal/metrics"
	"waba-gateway/internal/models"
	pkgmodels "waba-gateway/pkg/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Ingestor turns raw provider callbacks into WebhookRecords with idempotent
// deduplication. A record that was already processed is never reprocessed;
// an unprocessed duplicate (a provider retry) gets another attempt.
type Ingestor struct {
	db *gorm.DB
}

func NewIngestor(db *gorm.DB) *Ingestor {
	return &Ingestor{db: db}
}

// Ingest stores and processes one callback. It returns an error only for
// store failures; malformed payloads are recorded with processed=false and
// a processing_error so the caller can still acknowledge the delivery.
func (i *Ingestor) Ingest(ctx context.Context, raw []byte) (*models.WebhookRecord, error) {
	var payload pkgmodels.WebhookPayload
	parseErr := json.Unmarshal(raw, &payload)

	// A failed unmarshal can still leave partial data in the payload, and a
	// partially decoded message id must not dedup against the well-formed
	// delivery of the same event.
	var webhookID string
	if parseErr != nil {
		webhookID = contentHash(raw)
	} else {
		webhookID = dedupKey(&payload, raw)
	}

	var existing models.WebhookRecord
	err := i.db.WithContext(ctx).Where("webhook_id = ?", webhookID).First(&existing).Error
	switch {
	case err == nil && existing.Processed:
		// Idempotent no-op: the provider redelivered an event we already
		// handled.
		metrics.WebhooksReceived.WithLabelValues("duplicate").Inc()
		return &existing, nil
	case err == nil:
		return i.process(ctx, &existing, &payload, parseErr)
	case errors.Is(err, gorm.ErrRecordNotFound):
		record := &models.WebhookRecord{
			WebhookID: webhookID,
			Payload:   string(raw),
		}
		if createErr := i.db.WithContext(ctx).Create(record).Error; createErr != nil {
			// A concurrent delivery of the same event may have won the
			// unique-index race; treat it as a duplicate.
			if findErr := i.db.WithContext(ctx).Where("webhook_id = ?", webhookID).First(&existing).Error; findErr == nil {
				metrics.WebhooksReceived.WithLabelValues("duplicate").Inc()
				return &existing, nil
			}
			return nil, errors.Wrap(createErr, "webhook: creating record")
		}
		return i.process(ctx, record, &payload, parseErr)
	default:
		return nil, errors.Wrap(err, "webhook: looking up record")
	}
}

func (i *Ingestor) process(ctx context.Context, record *models.WebhookRecord, payload *pkgmodels.WebhookPayload, parseErr error) (*models.WebhookRecord, error) {
	if parseErr != nil {
		return i.finish(ctx, record, "unknown", "", fmt.Sprintf("malformed payload: %s", parseErr))
	}

	phoneNumberID := firstPhoneNumberID(payload)
	if phoneNumberID == "" {
		return i.finish(ctx, record, "unknown", "", "payload carries no phone_number_id metadata")
	}

	var account models.BusinessAccount
	err := i.db.WithContext(ctx).Where("phone_number_id = ?", phoneNumberID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return i.finish(ctx, record, "unknown", "", fmt.Sprintf("no business for phone_number_id %s", phoneNumberID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "webhook: resolving business")
	}

	eventType := i.logEvents(account.BusinessID, payload)

	return i.finish(ctx, record, eventType, account.BusinessID, "")
}

// finish sets the processed flag and processing_error exactly once.
func (i *Ingestor) finish(ctx context.Context, record *models.WebhookRecord, eventType, businessID, processingError string) (*models.WebhookRecord, error) {
	record.EventType = eventType
	record.BusinessID = businessID
	record.Processed = processingError == ""
	record.ProcessingError = processingError

	err := i.db.WithContext(ctx).Model(&models.WebhookRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"event_type":       record.EventType,
			"business_id":      record.BusinessID,
			"processed":        record.Processed,
			"processing_error": record.ProcessingError,
		}).Error
	if err != nil {
		return nil, errors.Wrap(err, "webhook: updating record")
	}

	outcome := "processed"
	if !record.Processed {
		outcome = "unparsed"
		log.Logger.WithFields(logrus.Fields{
			"webhook_id": record.WebhookID,
			"error":      processingError,
		}).Warn("webhook stored without processing")
	}
	metrics.WebhooksReceived.WithLabelValues(outcome).Inc()

	return record, nil
}

// logEvents walks the nested entry structure and reports the dominant
// event type.
func (i *Ingestor) logEvents(businessID string, payload *pkgmodels.WebhookPayload) string {
	eventType := "none"

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				eventType = "message"
				log.Logger.WithFields(logrus.Fields{
					"business_id": businessID,
					"message_id":  msg.ID,
					"from":        msg.From,
					"type":        msg.Type,
				}).Info("inbound message received")
			}
			for _, st := range change.Value.Statuses {
				if eventType == "none" {
					eventType = "status"
				}
				log.Logger.WithFields(logrus.Fields{
					"business_id": businessID,
					"message_id":  st.ID,
					"status":      st.Status,
					"recipient":   st.RecipientID,
				}).Info("message status update received")
			}
		}
	}

	return eventType
}

// dedupKey prefers the provider-supplied identifiers: the first inbound
// message id, else the first status id qualified by its status value
// (delivery and read receipts share the message id). Payloads without
// either get a content hash.
func dedupKey(payload *pkgmodels.WebhookPayload, raw []byte) string {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 && change.Value.Messages[0].ID != "" {
				return change.Value.Messages[0].ID
			}
			if len(change.Value.Statuses) > 0 && change.Value.Statuses[0].ID != "" {
				st := change.Value.Statuses[0]
				return st.ID + ":" + st.Status
			}
		}
	}

	return contentHash(raw)
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func firstPhoneNumberID(payload *pkgmodels.WebhookPayload) string {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Value.Metadata.PhoneNumberID != "" {
				return change.Value.Metadata.PhoneNumberID
			}
		}
	}
	return ""
}
