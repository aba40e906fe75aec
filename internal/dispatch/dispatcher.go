package dispatch

import (
	"context"
	"regexp"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/log"
	"waba-gateway/internal/metrics"
	"waba-gateway/internal/models"
	"waba-gateway/internal/whatsapp"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var recipientPattern = regexp.MustCompile(`^\+\d{10,15}$`)

// MessageSender is the slice of the provider client the dispatcher needs.
type MessageSender interface {
	SendMessage(ctx context.Context, token, phoneNumberID string, msg whatsapp.GenericMessage) (string, error)
}

// Dispatcher turns one logical message into one provider call and one
// OutboundMessage record. A provider failure is a normal result, not an
// error: the record carries status failed or rate_limited and the error
// text. Bulk dispatch depends on that contract.
type Dispatcher struct {
	db       *gorm.DB
	provider MessageSender
}

func NewDispatcher(db *gorm.DB, provider MessageSender) *Dispatcher {
	return &Dispatcher{db: db, provider: provider}
}

// Send validates, dispatches and records one message. It returns an error
// only for validation failures, a missing onboarding record or a store
// failure; everything provider-side lands in the returned record.
func (d *Dispatcher) Send(ctx context.Context, businessID, to string, payload Payload) (*models.OutboundMessage, error) {
	account, err := d.onboardedAccount(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return d.sendAs(ctx, account, to, payload)
}

// sendAs skips the account lookup; the bulk orchestrator resolves the
// account once for the whole batch.
func (d *Dispatcher) sendAs(ctx context.Context, account *models.BusinessAccount, to string, payload Payload) (*models.OutboundMessage, error) {
	if !recipientPattern.MatchString(to) {
		return nil, &apperrors.InvalidRecipientError{Recipient: to}
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	kind, _ := payload.Kind()

	record := &models.OutboundMessage{
		BusinessID: account.BusinessID,
		Recipient:  to,
		Type:       kind,
	}

	messageID, sendErr := d.provider.SendMessage(ctx, account.AccessToken, account.PhoneNumberID, payload.toProviderMessage(to))
	if sendErr != nil {
		record.Status = models.MessageStatusFailed
		record.ErrorMessage = sendErr.Error()
		var provErr *apperrors.ProviderError
		if errors.As(sendErr, &provErr) && provErr.RateLimited {
			record.Status = models.MessageStatusRateLimited
		}
		log.Logger.WithFields(logrus.Fields{
			"business_id": account.BusinessID,
			"to":          to,
			"type":        kind,
			"status":      record.Status,
		}).Warn("message dispatch failed")
	} else {
		record.Status = models.MessageStatusSent
		record.MessageID = messageID
	}

	if err := d.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, errors.Wrap(err, "dispatch: recording outbound message")
	}

	metrics.MessagesDispatched.WithLabelValues(string(record.Status)).Inc()

	return record, nil
}

// recordRejected persists a validation failure as a failed attempt so bulk
// batches keep one record per recipient.
func (d *Dispatcher) recordRejected(ctx context.Context, businessID, to string, kind models.MessageType, cause error) (*models.OutboundMessage, error) {
	record := &models.OutboundMessage{
		BusinessID:   businessID,
		Recipient:    to,
		Type:         kind,
		Status:       models.MessageStatusFailed,
		ErrorMessage: cause.Error(),
	}
	if err := d.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, errors.Wrap(err, "dispatch: recording rejected message")
	}

	metrics.MessagesDispatched.WithLabelValues(string(record.Status)).Inc()

	return record, nil
}

func (d *Dispatcher) onboardedAccount(ctx context.Context, businessID string) (*models.BusinessAccount, error) {
	if businessID == "" {
		return nil, apperrors.NewValidation("business_id is required")
	}

	var account models.BusinessAccount
	err := d.db.WithContext(ctx).Where("business_id = ?", businessID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotOnboardedError{BusinessID: businessID}
	}
	if err != nil {
		return nil, errors.Wrap(err, "dispatch: loading business account")
	}
	if account.Status != models.OnboardingFinished || account.AccessToken == "" {
		return nil, &apperrors.NotOnboardedError{BusinessID: businessID}
	}

	return &account, nil
}
