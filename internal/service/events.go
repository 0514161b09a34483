package service

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
)

// EventRecorder appends CampaignEvent rows, the audit trail operators read
// to see what the pipeline did to their campaigns.
type EventRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewEventRecorder(db *gorm.DB, logger *zap.Logger) *EventRecorder {
	return &EventRecorder{
		db:     db,
		logger: logger,
	}
}

// EventOption attaches optional references to a recorded event.
type EventOption func(*models.CampaignEvent)

// WithLead links the event to a lead.
func WithLead(leadID uint) EventOption {
	return func(e *models.CampaignEvent) {
		e.LeadID = &leadID
	}
}

// WithAction links the event to an action.
func WithAction(actionID uint) EventOption {
	return func(e *models.CampaignEvent) {
		e.ActionID = &actionID
	}
}

// WithContext attaches arbitrary context as JSON.
func WithContext(context map[string]interface{}) EventOption {
	return func(e *models.CampaignEvent) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// Record appends one event. Recording failures are logged and swallowed:
// the audit trail must never break the pipeline itself.
func (r *EventRecorder) Record(campaignID uint, ownerID, kind, level, message string, options ...EventOption) {
	event := &models.CampaignEvent{
		CampaignID: campaignID,
		OwnerID:    ownerID,
		Kind:       kind,
		Level:      level,
		Message:    message,
	}

	for _, option := range options {
		option(event)
	}

	if err := r.db.Create(event).Error; err != nil {
		r.logger.Error("Failed to record campaign event",
			zap.Uint("campaign_id", campaignID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

// RecentEvents returns the latest events for one campaign, newest first.
func (r *EventRecorder) RecentEvents(campaignID uint, ownerID string, limit int) ([]models.CampaignEvent, error) {
	var events []models.CampaignEvent
	err := r.db.
		Where("campaign_id = ? AND owner_id = ?", campaignID, ownerID).
		Order("created_at desc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// CleanupOldEvents removes events older than the retention period.
func (r *EventRecorder) CleanupOldEvents(daysToKeep int) error {
	cutoffDate := time.Now().AddDate(0, 0, -daysToKeep)
	return r.db.Where("created_at < ?", cutoffDate).Delete(&models.CampaignEvent{}).Error
}
