package onboarding

import (
	"context"
	"time"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/log"
	"waba-gateway/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Statuses accepted by Complete, mirroring the embedded signup callback.
const (
	CompleteFinish = "FINISH"
	CompleteCancel = "CANCEL"
)

// CodeExchanger is the slice of the provider client the coordinator needs.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	AuthorizationURL(state string) string
}

// Coordinator drives the per-business onboarding state machine:
// NOT_STARTED -> STARTED -> FINISHED | CANCELLED. Transitions are guarded
// by conditional updates so concurrent calls for the same business cannot
// leave an inconsistent record.
type Coordinator struct {
	db       *gorm.DB
	provider CodeExchanger
}

func NewCoordinator(db *gorm.DB, provider CodeExchanger) *Coordinator {
	return &Coordinator{db: db, provider: provider}
}

type StartResult struct {
	Account          *models.BusinessAccount `json:"account"`
	AuthorizationURL string                  `json:"authorization_url"`
}

// Start creates or resets the business's record to STARTED. A FINISHED
// account is rejected; a CANCELLED one may restart.
func (c *Coordinator) Start(ctx context.Context, businessID string) (*StartResult, error) {
	if businessID == "" {
		return nil, apperrors.NewValidation("business_id is required")
	}

	var account models.BusinessAccount
	err := c.db.WithContext(ctx).Where("business_id = ?", businessID).First(&account).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account = models.BusinessAccount{
			BusinessID:  businessID,
			Status:      models.OnboardingStarted,
			CurrentStep: "authorization",
		}
		if err := c.db.WithContext(ctx).Create(&account).Error; err != nil {
			return nil, errors.Wrap(err, "onboarding: creating business account")
		}
	case err != nil:
		return nil, errors.Wrap(err, "onboarding: loading business account")
	default:
		if account.Status == models.OnboardingFinished {
			return nil, &apperrors.AlreadyFinishedError{BusinessID: businessID}
		}
		// Reset to STARTED unless a concurrent call finished in the meantime.
		res := c.db.WithContext(ctx).Model(&models.BusinessAccount{}).
			Where("business_id = ? AND status <> ?", businessID, models.OnboardingFinished).
			Updates(map[string]interface{}{
				"status":       models.OnboardingStarted,
				"current_step": "authorization",
				"access_token": "",
			})
		if res.Error != nil {
			return nil, errors.Wrap(res.Error, "onboarding: resetting business account")
		}
		if res.RowsAffected == 0 {
			return nil, &apperrors.AlreadyFinishedError{BusinessID: businessID}
		}
		if err := c.db.WithContext(ctx).Where("business_id = ?", businessID).First(&account).Error; err != nil {
			return nil, errors.Wrap(err, "onboarding: reloading business account")
		}
	}

	log.Logger.WithField("business_id", businessID).Info("onboarding session started")

	return &StartResult{
		Account:          &account,
		AuthorizationURL: c.provider.AuthorizationURL(businessID),
	}, nil
}

type CompleteRequest struct {
	BusinessID    string `json:"business_id"`
	Status        string `json:"status"`
	Code          string `json:"code"`
	WabaID        string `json:"waba_id"`
	PhoneNumberID string `json:"phone_number_id"`
	CurrentStep   string `json:"current_step"`
}

// Complete finishes or cancels a STARTED onboarding. FINISH exchanges the
// one-time authorization code for a long-lived token before persisting the
// credentials; on exchange failure the record stays STARTED and the
// provider error is returned verbatim, because the code cannot be reused.
func (c *Coordinator) Complete(ctx context.Context, req CompleteRequest) (*models.BusinessAccount, error) {
	if req.BusinessID == "" {
		return nil, apperrors.NewValidation("business_id is required")
	}

	switch req.Status {
	case CompleteCancel:
		return c.cancel(ctx, req.BusinessID)
	case CompleteFinish:
		return c.finish(ctx, req)
	default:
		return nil, apperrors.NewValidation("status must be FINISH or CANCEL, got %q", req.Status)
	}
}

func (c *Coordinator) cancel(ctx context.Context, businessID string) (*models.BusinessAccount, error) {
	res := c.db.WithContext(ctx).Model(&models.BusinessAccount{}).
		Where("business_id = ? AND status = ?", businessID, models.OnboardingStarted).
		Updates(map[string]interface{}{
			"status":       models.OnboardingCancelled,
			"current_step": "cancelled",
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "onboarding: cancelling business account")
	}
	if res.RowsAffected == 0 {
		account, err := c.load(ctx, businessID)
		if err != nil {
			return nil, err
		}
		// The signup dialog may fire the cancel callback more than once;
		// cancelling an already-cancelled account is a no-op.
		if account.Status == models.OnboardingCancelled {
			return account, nil
		}
		return nil, c.explainMissedTransition(ctx, businessID)
	}

	log.Logger.WithField("business_id", businessID).Info("onboarding cancelled")
	return c.load(ctx, businessID)
}

func (c *Coordinator) finish(ctx context.Context, req CompleteRequest) (*models.BusinessAccount, error) {
	if req.Code == "" {
		return nil, apperrors.NewValidation("authorization code is required to finish onboarding")
	}

	account, err := c.load(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.OnboardingStarted {
		return nil, c.explainMissedTransition(ctx, req.BusinessID)
	}

	token, err := c.provider.ExchangeCode(ctx, req.Code)
	if err != nil {
		log.Logger.WithFields(logrus.Fields{
			"business_id": req.BusinessID,
			"error":       err.Error(),
		}).Warn("authorization code exchange failed")
		return nil, err
	}

	currentStep := req.CurrentStep
	if currentStep == "" {
		currentStep = "completed"
	}

	res := c.db.WithContext(ctx).Model(&models.BusinessAccount{}).
		Where("business_id = ? AND status = ?", req.BusinessID, models.OnboardingStarted).
		Updates(map[string]interface{}{
			"status":          models.OnboardingFinished,
			"current_step":    currentStep,
			"waba_id":         req.WabaID,
			"phone_number_id": req.PhoneNumberID,
			"access_token":    token,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "onboarding: finishing business account")
	}
	if res.RowsAffected == 0 {
		return nil, c.explainMissedTransition(ctx, req.BusinessID)
	}

	log.Logger.WithFields(logrus.Fields{
		"business_id":     req.BusinessID,
		"waba_id":         req.WabaID,
		"phone_number_id": req.PhoneNumberID,
	}).Info("onboarding finished")

	return c.load(ctx, req.BusinessID)
}

// explainMissedTransition turns a zero-rows conditional update into the
// right caller-facing error.
func (c *Coordinator) explainMissedTransition(ctx context.Context, businessID string) error {
	account, err := c.load(ctx, businessID)
	if err != nil {
		return err
	}
	if account.Status == models.OnboardingFinished {
		return &apperrors.AlreadyFinishedError{BusinessID: businessID}
	}
	return apperrors.NewValidation("onboarding for business %s is not in progress (status %s)", businessID, account.Status)
}

func (c *Coordinator) load(ctx context.Context, businessID string) (*models.BusinessAccount, error) {
	var account models.BusinessAccount
	err := c.db.WithContext(ctx).Where("business_id = ?", businessID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("business", businessID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "onboarding: loading business account")
	}
	return &account, nil
}

// StatusProjection is the read-only view of an account. It never exposes
// the raw access token.
type StatusProjection struct {
	BusinessID    string                  `json:"business_id"`
	Status        models.OnboardingStatus `json:"status"`
	CurrentStep   string                  `json:"current_step"`
	WabaID        string                  `json:"waba_id"`
	PhoneNumberID string                  `json:"phone_number_id"`
	HasToken      bool                    `json:"has_token"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func (c *Coordinator) GetStatus(ctx context.Context, businessID string) (*StatusProjection, error) {
	account, err := c.load(ctx, businessID)
	if err != nil {
		return nil, err
	}

	return &StatusProjection{
		BusinessID:    account.BusinessID,
		Status:        account.Status,
		CurrentStep:   account.CurrentStep,
		WabaID:        account.WabaID,
		PhoneNumberID: account.PhoneNumberID,
		HasToken:      account.AccessToken != "",
		UpdatedAt:     account.UpdatedAt,
	}, nil
}
