package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
)

// StatsUpdater maintains the per-day CampaignStats snapshots and prunes
// old audit events.
type StatsUpdater struct {
	config *config.StatsConfig
	db     *gorm.DB
	logger *zap.Logger
	events *EventRecorder
	ticker *time.Ticker
	done   chan bool
}

func NewStatsUpdater(cfg *config.StatsConfig, db *gorm.DB, logger *zap.Logger, events *EventRecorder) *StatsUpdater {
	return &StatsUpdater{
		config: cfg,
		db:     db,
		logger: logger,
		events: events,
		ticker: time.NewTicker(cfg.Interval),
		done:   make(chan bool),
	}
}

// Start begins the periodic stats update process.
func (s *StatsUpdater) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("Stats updater is disabled")
		return
	}

	go func() {
		s.logger.Info("Starting stats updater", zap.Duration("interval", s.config.Interval))
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.update()
			}
		}
	}()
}

// Stop stops the stats updater.
func (s *StatsUpdater) Stop() {
	s.ticker.Stop()
	close(s.done)
}

func (s *StatsUpdater) update() {
	s.logger.Debug("Updating campaign statistics")

	if err := s.SnapshotToday(); err != nil {
		s.logger.Error("Failed to snapshot campaign stats", zap.Error(err))
	}

	if err := s.events.CleanupOldEvents(s.config.RetentionDays); err != nil {
		s.logger.Error("Failed to cleanup old events", zap.Error(err))
	}

	s.logger.Debug("Campaign statistics updated")
}

// SnapshotToday upserts today's CampaignStats row for every campaign that
// saw activity today. Re-running within the same day overwrites the row
// with fresh counts.
func (s *StatsUpdater) SnapshotToday() error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	tomorrow := today.Add(24 * time.Hour)

	var campaigns []models.Campaign
	if err := s.db.Find(&campaigns).Error; err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	for _, campaign := range campaigns {
		stats := models.CampaignStats{
			Date:       today,
			CampaignID: campaign.ID,
			OwnerID:    campaign.OwnerID,
		}

		var count int64
		if err := s.db.Model(&models.Lead{}).
			Where("campaign_id = ? AND created_at >= ? AND created_at < ?", campaign.ID, today, tomorrow).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count captured leads: %w", err)
		}
		stats.LeadsCaptured = int(count)

		if err := s.db.Model(&models.Lead{}).
			Where("campaign_id = ? AND approved_at >= ? AND approved_at < ?", campaign.ID, today, tomorrow).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count approved leads: %w", err)
		}
		stats.LeadsApproved = int(count)

		if err := s.db.Model(&models.Lead{}).
			Where("campaign_id = ? AND status = ? AND updated_at >= ? AND updated_at < ?",
				campaign.ID, models.LeadStatusCompleted, today, tomorrow).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count completed leads: %w", err)
		}
		stats.LeadsCompleted = int(count)

		if err := s.db.Model(&models.Action{}).
			Where("campaign_id = ? AND status = ? AND executed_at >= ? AND executed_at < ?",
				campaign.ID, models.ActionStatusDone, today, tomorrow).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count done actions: %w", err)
		}
		stats.ActionsDone = int(count)

		if err := s.db.Model(&models.Action{}).
			Where("campaign_id = ? AND status = ? AND updated_at >= ? AND updated_at < ?",
				campaign.ID, models.ActionStatusFailed, today, tomorrow).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count failed actions: %w", err)
		}
		stats.ActionsFailed = int(count)

		if stats.LeadsCaptured == 0 && stats.LeadsApproved == 0 && stats.LeadsCompleted == 0 &&
			stats.ActionsDone == 0 && stats.ActionsFailed == 0 {
			continue
		}

		err := s.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}, {Name: "campaign_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"leads_captured", "leads_approved", "leads_completed",
				"actions_done", "actions_failed", "updated_at",
			}),
		}).Create(&stats).Error
		if err != nil {
			return fmt.Errorf("failed to upsert campaign stats: %w", err)
		}
	}

	return nil
}

// DailyStats returns the stored snapshots for one campaign, newest first.
func (s *StatsUpdater) DailyStats(ownerID string, campaignID uint, days int) ([]models.CampaignStats, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var stats []models.CampaignStats
	err := s.db.
		Where("owner_id = ? AND campaign_id = ? AND date >= ?", ownerID, campaignID, since).
		Order("date desc").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign stats: %w", err)
	}
	return stats, nil
}
