package models

import (
	"time"
)

const (
	InteractionKindCaptured = "lead_captured"
	InteractionKindReply    = "reply_sent"
	InteractionKindDM       = "dm_sent"
	InteractionKindInvite   = "invite_sent"
	InteractionKindLike     = "post_liked"
)

// Person is the CRM record for a LinkedIn profile, upserted on
// (owner_id, profile_id) whenever a lead is captured or an action
// completes.
type Person struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	OwnerID   string `gorm:"not null;uniqueIndex:idx_people_owner_profile;size:255" json:"owner_id"`
	ProfileID string `gorm:"not null;uniqueIndex:idx_people_owner_profile;size:255" json:"profile_id"`

	ProfileURL string `gorm:"size:1000" json:"profile_url"`
	Name       string `gorm:"size:255" json:"name"`
	Headline   string `gorm:"size:500" json:"headline"`

	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Interaction is one append-only CRM event tied to a Person.
type Interaction struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PersonID   uint   `gorm:"not null;index" json:"person_id"`
	OwnerID    string `gorm:"not null;index;size:255" json:"owner_id"`
	CampaignID uint   `gorm:"index" json:"campaign_id"`
	LeadID     *uint  `gorm:"index" json:"lead_id"`

	Kind    string `gorm:"size:50;not null" json:"kind"`
	Summary string `gorm:"type:text" json:"summary"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
