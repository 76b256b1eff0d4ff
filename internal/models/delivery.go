package models

import (
	"time"

	"gorm.io/gorm"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusSkipped DeliveryStatus = "skipped"
)

// DeliveryRecord is one immutable audit entry for a dispatch attempt.
// Retries never mutate an existing record; each finalized outcome appends.
type DeliveryRecord struct {
	gorm.Model
	RuleID            uint           `json:"rule_id" gorm:"index"`
	RuleName          string         `json:"rule_name"`
	SubmissionID      uint           `json:"submission_id" gorm:"index"`
	Status            DeliveryStatus `json:"status" gorm:"index;not null"`
	RenderedMessage   string         `json:"rendered_message"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
}
