package models

import (
	"time"

	"gorm.io/gorm"
)

type TriggerType string

const (
	TriggerFieldUpdate TriggerType = "field_update"
	TriggerScheduled   TriggerType = "scheduled"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its dispatch order; lower dispatches first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

type Rule struct {
	gorm.Model
	Name             string      `json:"name" gorm:"uniqueIndex;not null"`
	Description      string      `json:"description"`
	TriggerType      TriggerType `json:"trigger_type" gorm:"not null;index"`
	FormID           string      `json:"form_id" gorm:"index"`
	SubFormID        string      `json:"sub_form_id"`     // Optional, restricts matching to a sub-form
	TargetFieldID    string      `json:"target_field_id"` // Optional, only fire when this field changed
	ConditionFormula string      `json:"condition_formula"`
	MessageTemplate  string      `json:"message_template"`
	BotToken         string      `json:"bot_token"` // Optional per-rule channel override
	GroupID          string      `json:"group_id"`  // Optional per-rule channel override
	Schedule         string      `json:"schedule"`  // 5-field cron, required for scheduled rules
	IsEnabled        bool        `json:"is_enabled" gorm:"default:true"`
	SendOnce         bool        `json:"send_once"`
	Priority         Priority    `json:"priority" gorm:"default:medium"`
	LastFiredAt      *time.Time  `json:"last_fired_at"`
	FireCount        int         `json:"fire_count" gorm:"default:0"`
}
