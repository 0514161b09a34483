package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	CampaignStatusActive = "active"
	CampaignStatusPaused = "paused"
	CampaignStatusEnded  = "ended"
)

const (
	CaptureModeAny     = "any"
	CaptureModeKeyword = "keyword"
)

// StringArray represents a PostgreSQL text[] type
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// Handle PostgreSQL array format: {value1,value2,value3}
		if v == "{}" || v == "" {
			*s = StringArray{}
			return nil
		}

		// Remove outer braces and split by comma
		trimmed := strings.Trim(v, "{}")
		if trimmed == "" {
			*s = StringArray{}
			return nil
		}

		parts := strings.Split(trimmed, ",")
		result := make([]string, len(parts))
		for i, part := range parts {
			// Remove quotes if present
			result[i] = strings.Trim(strings.TrimSpace(part), "\"")
		}
		*s = result
		return nil
	case []byte:
		// Try to parse as JSON first
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		// Fallback to string parsing
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	// Format as PostgreSQL array: {value1,value2,value3}
	quoted := make([]string, len(s))
	for i, v := range s {
		// Escape quotes and wrap in quotes
		escaped := strings.ReplaceAll(v, "\"", "\\\"")
		quoted[i] = fmt.Sprintf("\"%s\"", escaped)
	}

	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}

// Campaign monitors one LinkedIn post and holds its automation rules.
// PostURN is immutable once the campaign is created.
type Campaign struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	OwnerID           string `gorm:"not null;index;size:255" json:"owner_id"`
	LinkedInAccountID string `gorm:"not null;size:255" json:"linkedin_account_id"`
	Name              string `gorm:"not null;size:255" json:"name"`
	Status            string `gorm:"size:50;default:'active';index" json:"status"`

	PostURN    string `gorm:"not null;size:255" json:"post_urn"`
	PostText   string `gorm:"type:text" json:"post_text"`
	PostAuthor string `gorm:"size:255" json:"post_author"`

	CaptureMode string      `gorm:"size:50;default:'any'" json:"capture_mode"`
	Keywords    StringArray `gorm:"type:text[]" json:"keywords"`

	EnableLike   bool `gorm:"default:false" json:"enable_like"`
	EnableReply  bool `gorm:"default:true" json:"enable_reply"`
	EnableDM     bool `gorm:"default:true" json:"enable_dm"`
	EnableInvite bool `gorm:"default:false" json:"enable_invite"`

	ReplyTemplate string `gorm:"type:text" json:"reply_template"`
	DMTemplate    string `gorm:"type:text" json:"dm_template"`
	MagnetLink    string `gorm:"size:1000" json:"magnet_link"`
	MagnetLabel   string `gorm:"size:255" json:"magnet_label"`
	PersonaText   string `gorm:"type:text" json:"persona_text"`

	RequireApproval bool      `gorm:"default:true" json:"require_approval"`
	WindowDays      int       `gorm:"default:7" json:"window_days"`
	ExpiresAt       time.Time `json:"expires_at"`

	// Polling cursor: id of the newest comment processed so far.
	LastSeenCommentID string `gorm:"size:255" json:"last_seen_comment_id"`

	TotalCaptured  int `gorm:"default:0" json:"total_captured"`
	TotalApproved  int `gorm:"default:0" json:"total_approved"`
	TotalCompleted int `gorm:"default:0" json:"total_completed"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// Expired reports whether the campaign's capture window has elapsed.
func (c *Campaign) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
