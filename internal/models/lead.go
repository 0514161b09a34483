package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	LeadStatusPending   = "pending"
	LeadStatusApproved  = "approved"
	LeadStatusSkipped   = "skipped"
	LeadStatusCompleted = "completed"
)

// Lead is one captured commenter for one campaign. The composite unique
// index on (campaign_id, source_comment_id) makes capture idempotent: a
// given comment produces exactly one Lead.
type Lead struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CampaignID uint   `gorm:"not null;uniqueIndex:idx_leads_campaign_comment;index" json:"campaign_id"`
	OwnerID    string `gorm:"not null;index;size:255" json:"owner_id"`

	SourceCommentID string `gorm:"not null;uniqueIndex:idx_leads_campaign_comment;size:255" json:"source_comment_id"`

	CommenterProfileID string `gorm:"not null;size:255" json:"commenter_profile_id"`
	CommenterURL       string `gorm:"size:1000" json:"commenter_url"`
	CommenterName      string `gorm:"size:255" json:"commenter_name"`
	CommenterHeadline  string `gorm:"size:500" json:"commenter_headline"`

	CommentText string     `gorm:"type:text" json:"comment_text"`
	CommentedAt *time.Time `json:"commented_at"`

	GeneratedReply string `gorm:"type:text" json:"generated_reply"`
	GeneratedDM    string `gorm:"type:text" json:"generated_dm"`

	// GenerationError holds the last fatal generation failure. A lead
	// carrying one is excluded from the automatic generation sweep until
	// an operator requests a retry.
	GenerationError string `gorm:"size:500;default:''" json:"generation_error"`

	Status      string     `gorm:"size:50;default:'pending';index" json:"status"`
	IntentScore *int       `json:"intent_score"`
	SkipReason  string     `gorm:"size:500" json:"skip_reason"`
	ApprovedAt  *time.Time `json:"approved_at"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
