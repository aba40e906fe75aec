package onboarding

import (
	"context"
	"testing"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/database"
	"waba-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeExchanger struct {
	token string
	err   error
	codes []string
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, code string) (string, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeExchanger) AuthorizationURL(state string) string {
	return "https://www.facebook.com/v21.0/dialog/oauth?state=" + state
}

func newTestCoordinator(t *testing.T, provider CodeExchanger) (*Coordinator, *gorm.DB) {
	t.Helper()
	db, err := database.ConnectTest()
	require.NoError(t, err)
	return NewCoordinator(db, provider), db
}

func finishRequest(businessID string) CompleteRequest {
	return CompleteRequest{
		BusinessID:    businessID,
		Status:        CompleteFinish,
		Code:          "one-time-code",
		WabaID:        "1000000000001",
		PhoneNumberID: "2000000000002",
	}
}

func TestStartCreatesStartedAccount(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{token: "tok"})

	result, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingStarted, result.Account.Status)
	assert.Equal(t, "authorization", result.Account.CurrentStep)
	assert.Contains(t, result.AuthorizationURL, "dialog/oauth")

	status, err := c.GetStatus(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingStarted, status.Status)
	assert.False(t, status.HasToken)
}

func TestStartRequiresBusinessID(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{})

	_, err := c.Start(context.Background(), "")
	var validation *apperrors.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestStartIsIdempotentWhileStarted(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)
	result, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingStarted, result.Account.Status)
}

func TestFinishStoresExchangedToken(t *testing.T) {
	exchanger := &fakeExchanger{token: "long-lived-token"}
	c, db := newTestCoordinator(t, exchanger)

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)

	account, err := c.Complete(context.Background(), finishRequest("biz-1"))
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingFinished, account.Status)
	assert.Equal(t, "1000000000001", account.WabaID)
	assert.Equal(t, "2000000000002", account.PhoneNumberID)
	assert.Equal(t, []string{"one-time-code"}, exchanger.codes)

	var stored models.BusinessAccount
	require.NoError(t, db.Where("business_id = ?", "biz-1").First(&stored).Error)
	assert.Equal(t, "long-lived-token", stored.AccessToken)

	status, err := c.GetStatus(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.True(t, status.HasToken)
}

func TestFinishRequiresCode(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)

	req := finishRequest("biz-1")
	req.Code = ""
	_, err = c.Complete(context.Background(), req)
	var validation *apperrors.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestExchangeFailureLeavesAccountStarted(t *testing.T) {
	exchangeErr := &apperrors.ProviderError{StatusCode: 400, Message: "code expired"}
	c, _ := newTestCoordinator(t, &fakeExchanger{err: exchangeErr})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), finishRequest("biz-1"))
	var provider *apperrors.ProviderError
	require.ErrorAs(t, err, &provider)
	assert.Equal(t, "code expired", provider.Message)

	status, err := c.GetStatus(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingStarted, status.Status)
	assert.False(t, status.HasToken)
}

func TestCancelThenFinishIsRejected(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{token: "tok"})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)

	account, err := c.Complete(context.Background(), CompleteRequest{BusinessID: "biz-1", Status: CompleteCancel})
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingCancelled, account.Status)

	_, err = c.Complete(context.Background(), finishRequest("biz-1"))
	var validation *apperrors.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCancelIsIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)

	cancelReq := CompleteRequest{BusinessID: "biz-1", Status: CompleteCancel}
	first, err := c.Complete(context.Background(), cancelReq)
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingCancelled, first.Status)

	// A repeated cancel callback is a no-op, not an error.
	second, err := c.Complete(context.Background(), cancelReq)
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingCancelled, second.Status)
}

func TestCancelledAccountMayRestart(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{token: "tok"})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), CompleteRequest{BusinessID: "biz-1", Status: CompleteCancel})
	require.NoError(t, err)

	result, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, models.OnboardingStarted, result.Account.Status)
}

func TestFinishedAccountCannotRestartOrComplete(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{token: "tok"})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), finishRequest("biz-1"))
	require.NoError(t, err)

	var finished *apperrors.AlreadyFinishedError

	_, err = c.Start(context.Background(), "biz-1")
	require.ErrorAs(t, err, &finished)

	_, err = c.Complete(context.Background(), finishRequest("biz-1"))
	require.ErrorAs(t, err, &finished)

	_, err = c.Complete(context.Background(), CompleteRequest{BusinessID: "biz-1", Status: CompleteCancel})
	require.ErrorAs(t, err, &finished)
}

func TestCompleteRejectsUnknownStatus(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{})

	_, err := c.Start(context.Background(), "biz-1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), CompleteRequest{BusinessID: "biz-1", Status: "MAYBE"})
	var validation *apperrors.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCompleteUnknownBusiness(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeExchanger{})

	_, err := c.Complete(context.Background(), finishRequest("ghost"))
	var notFound *apperrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
