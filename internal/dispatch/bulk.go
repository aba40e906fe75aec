package dispatch

import (
	"context"
	"sync"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/log"
	"waba-gateway/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxBulkRecipients caps a single bulk request.
const MaxBulkRecipients = 100

type BulkResult struct {
	Total      int                       `json:"total"`
	Successful int                       `json:"successful"`
	Failed     int                       `json:"failed"`
	Results    []*models.OutboundMessage `json:"results"`
}

// BulkOrchestrator fans one payload out to many recipients through a
// fixed-size worker pool. Results keep the input recipient order no matter
// which worker finishes first, and one recipient's failure never aborts
// the batch.
type BulkOrchestrator struct {
	dispatcher *Dispatcher
	workers    int
}

func NewBulkOrchestrator(d *Dispatcher, workers int) *BulkOrchestrator {
	if workers <= 0 {
		workers = 5
	}
	return &BulkOrchestrator{dispatcher: d, workers: workers}
}

// SendBulk dispatches payload to every recipient. The call itself fails
// only on input validation or when the business is not onboarded.
func (b *BulkOrchestrator) SendBulk(ctx context.Context, businessID string, recipients []string, payload Payload) (*BulkResult, error) {
	if len(recipients) == 0 {
		return nil, apperrors.NewValidation("recipients list is empty")
	}
	if len(recipients) > MaxBulkRecipients {
		return nil, apperrors.NewValidation("too many recipients: %d (max %d)", len(recipients), MaxBulkRecipients)
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	kind, _ := payload.Kind()

	account, err := b.dispatcher.onboardedAccount(ctx, businessID)
	if err != nil {
		return nil, err
	}

	results := make([]*models.OutboundMessage, len(recipients))
	jobs := make(chan int)

	workers := b.workers
	if workers > len(recipients) {
		workers = len(recipients)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.sendOne(ctx, account, recipients[i], kind, payload)
			}
		}()
	}

	for i := range recipients {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := &BulkResult{Total: len(recipients), Results: results}
	for _, r := range results {
		if r.Status == models.MessageStatusSent {
			result.Successful++
		} else {
			result.Failed++
		}
	}

	log.Logger.WithFields(logrus.Fields{
		"business_id": businessID,
		"total":       result.Total,
		"successful":  result.Successful,
		"failed":      result.Failed,
	}).Info("bulk send completed")

	return result, nil
}

// sendOne never returns an error: per-recipient problems become failed
// result entries.
func (b *BulkOrchestrator) sendOne(ctx context.Context, account *models.BusinessAccount, to string, kind models.MessageType, payload Payload) *models.OutboundMessage {
	record, err := b.dispatcher.sendAs(ctx, account, to, payload)
	if err == nil {
		return record
	}

	var invalid *apperrors.InvalidRecipientError
	if errors.As(err, &invalid) {
		record, recErr := b.dispatcher.recordRejected(ctx, account.BusinessID, to, kind, err)
		if recErr == nil {
			return record
		}
		err = recErr
	}

	// Store failures still yield an entry so the result list stays aligned
	// with the input order.
	return &models.OutboundMessage{
		BusinessID:   account.BusinessID,
		Recipient:    to,
		Type:         kind,
		Status:       models.MessageStatusFailed,
		ErrorMessage: err.Error(),
	}
}
