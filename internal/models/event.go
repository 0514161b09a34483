package models

import (
	"time"
)

const (
	EventLevelInfo  = "INFO"
	EventLevelWarn  = "WARN"
	EventLevelError = "ERROR"
)

const (
	EventKindPoll     = "poll"
	EventKindCapture  = "capture"
	EventKindGenerate = "generate"
	EventKindApprove  = "approve"
	EventKindSkip     = "skip"
	EventKindExecute  = "execute"
	EventKindClose    = "close"
	EventKindError    = "error"
)

// CampaignEvent is the append-only audit trail of pipeline activity.
// The pipeline only writes; operators read.
type CampaignEvent struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CampaignID uint   `gorm:"not null;index" json:"campaign_id"`
	OwnerID    string `gorm:"not null;index;size:255" json:"owner_id"`
	LeadID     *uint  `gorm:"index" json:"lead_id"`
	ActionID   *uint  `gorm:"index" json:"action_id"`

	Kind    string `gorm:"size:50;not null;index" json:"kind"`
	Level   string `gorm:"size:20;not null" json:"level"`
	Message string `gorm:"type:text;not null" json:"message"`
	Context string `gorm:"type:jsonb" json:"context"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// CampaignStats is a per-day snapshot of campaign activity, maintained by
// the periodic stats updater for dashboard reads.
type CampaignStats struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Date       time.Time `gorm:"not null;uniqueIndex:idx_stats_date_campaign" json:"date"`
	CampaignID uint      `gorm:"not null;uniqueIndex:idx_stats_date_campaign;index" json:"campaign_id"`
	OwnerID    string    `gorm:"not null;index;size:255" json:"owner_id"`

	LeadsCaptured  int `gorm:"default:0" json:"leads_captured"`
	LeadsApproved  int `gorm:"default:0" json:"leads_approved"`
	LeadsCompleted int `gorm:"default:0" json:"leads_completed"`
	ActionsDone    int `gorm:"default:0" json:"actions_done"`
	ActionsFailed  int `gorm:"default:0" json:"actions_failed"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
