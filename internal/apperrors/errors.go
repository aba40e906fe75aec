package apperrors

import "fmt"

// ValidationError rejects malformed input before any external call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InvalidRecipientError means the recipient is not a +E.164 phone number.
type InvalidRecipientError struct {
	Recipient string
}

func (e *InvalidRecipientError) Error() string {
	return fmt.Sprintf("invalid recipient %q: must match +<10-15 digits>", e.Recipient)
}

// NotOnboardedError means the business has no finished onboarding record
// or no access token, so nothing can be sent on its behalf.
type NotOnboardedError struct {
	BusinessID string
}

func (e *NotOnboardedError) Error() string {
	return fmt.Sprintf("business %s is not onboarded", e.BusinessID)
}

// AlreadyFinishedError rejects re-onboarding of an active account.
type AlreadyFinishedError struct {
	BusinessID string
}

func (e *AlreadyFinishedError) Error() string {
	return fmt.Sprintf("business %s has already finished onboarding", e.BusinessID)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// AuthError covers a missing/invalid caller credential and the webhook
// verify-token mismatch. It is the only error allowed to turn a webhook
// request into a non-2xx response.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func NewAuth(message string) error {
	return &AuthError{Message: message}
}

// ProviderError is a failed call to the messaging provider, including
// rate limiting. For sends it becomes the message's failure result rather
// than an error surfaced to the caller.
type ProviderError struct {
	StatusCode  int
	Code        int
	Message     string
	RateLimited bool
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}
