package models

import (
	"time"

	"gorm.io/gorm"
)

// ActionType discriminates what an Action does when executed. Kept as a
// named type so handlers switch over variants instead of comparing free
// strings.
type ActionType string

const (
	ActionTypeReply  ActionType = "reply"
	ActionTypeDM     ActionType = "dm"
	ActionTypeInvite ActionType = "invite"
	ActionTypeLike   ActionType = "like"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionTypeReply, ActionTypeDM, ActionTypeInvite, ActionTypeLike:
		return true
	}
	return false
}

const (
	ActionStatusQueued    = "queued"
	ActionStatusExecuting = "executing"
	ActionStatusDone      = "done"
	ActionStatusFailed    = "failed"
)

// Action is one scheduled outbound effect tied to a Lead. At most one
// non-failed Action exists per (lead_id, type); the scheduler checks for
// queued/done rows before drafting a new one.
type Action struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	CampaignID        uint   `gorm:"not null;index" json:"campaign_id"`
	LeadID            uint   `gorm:"not null;index" json:"lead_id"`
	OwnerID           string `gorm:"not null;index;size:255" json:"owner_id"`
	LinkedInAccountID string `gorm:"not null;index;size:255" json:"linkedin_account_id"`

	Type   ActionType `gorm:"not null;size:50" json:"type"`
	Status string     `gorm:"size:50;default:'queued';index" json:"status"`

	// Final text for reply/dm actions; may be operator-edited until the
	// action executes.
	Content string `gorm:"type:text" json:"content"`

	ScheduledFor time.Time  `gorm:"not null;index" json:"scheduled_for"`
	ExecutedAt   *time.Time `json:"executed_at"`
	FailReason   string     `gorm:"type:text" json:"fail_reason"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
