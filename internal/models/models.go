package models

import (
	"time"
)

// OnboardingStatus is the per-business onboarding state machine state.
type OnboardingStatus string

const (
	OnboardingNotStarted OnboardingStatus = "NOT_STARTED"
	OnboardingStarted    OnboardingStatus = "STARTED"
	OnboardingFinished   OnboardingStatus = "FINISHED"
	OnboardingCancelled  OnboardingStatus = "CANCELLED"
)

// Terminal reports whether no further onboarding transition is expected.
// A CANCELLED business may still restart onboarding via a new start call.
func (s OnboardingStatus) Terminal() bool {
	return s == OnboardingFinished || s == OnboardingCancelled
}

// BusinessAccount holds the onboarding state and credentials for one business.
// AccessToken is non-empty iff Status is FINISHED.
type BusinessAccount struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	BusinessID    string           `gorm:"type:varchar(255);not null;uniqueIndex" json:"business_id"`
	Status        OnboardingStatus `gorm:"type:varchar(20);not null;default:'NOT_STARTED'" json:"status"`
	CurrentStep   string           `gorm:"type:varchar(255)" json:"current_step"`
	WabaID        string           `gorm:"type:varchar(255)" json:"waba_id"`
	PhoneNumberID string           `gorm:"type:varchar(255)" json:"phone_number_id"`
	AccessToken   string           `gorm:"type:text" json:"-"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BusinessAccount) TableName() string {
	return "business_accounts"
}

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeTemplate MessageType = "template"
	MessageTypeMedia    MessageType = "media"
)

type MessageStatus string

const (
	MessageStatusSent        MessageStatus = "sent"
	MessageStatusFailed      MessageStatus = "failed"
	MessageStatusRateLimited MessageStatus = "rate_limited"
)

// OutboundMessage records one send attempt. It is immutable after creation;
// delivery and read receipts arrive as separate webhook records.
type OutboundMessage struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	MessageID    string        `gorm:"type:varchar(255);index" json:"message_id"`
	BusinessID   string        `gorm:"type:varchar(255);not null;index" json:"business_id"`
	Recipient    string        `gorm:"type:varchar(50);not null" json:"to"`
	Type         MessageType   `gorm:"type:varchar(20);not null" json:"type"`
	Status       MessageStatus `gorm:"type:varchar(20);not null" json:"status"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (OutboundMessage) TableName() string {
	return "outbound_messages"
}

// WebhookRecord is one inbound provider callback keyed by its dedup id.
type WebhookRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	WebhookID       string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"webhook_id"`
	BusinessID      string    `gorm:"type:varchar(255);index" json:"business_id"`
	EventType       string    `gorm:"type:varchar(50)" json:"event_type"`
	Payload         string    `gorm:"type:text" json:"payload"`
	Processed       bool      `gorm:"not null;default:false" json:"processed"`
	ProcessingError string    `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (WebhookRecord) TableName() string {
	return "webhook_records"
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
)

// Task is a durable unit of deferred work. It only moves forward:
// pending/retrying -> running -> succeeded | retrying | failed.
type Task struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	TaskType     string     `gorm:"type:varchar(100);not null;index" json:"task_type"`
	Status       TaskStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Parameters   string     `gorm:"type:text" json:"parameters"`
	Result       string     `gorm:"type:text" json:"result,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int        `gorm:"not null;default:3" json:"max_retries"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}
