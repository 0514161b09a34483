package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
)

// CRMService keeps the Person/Interaction pair in sync with pipeline
// activity: a Person is upserted whenever a lead is captured or an action
// completes, and every touch appends an Interaction.
type CRMService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCRMService(db *gorm.DB, logger *zap.Logger) *CRMService {
	return &CRMService{
		db:     db,
		logger: logger,
	}
}

// UpsertPerson creates or refreshes the Person row for a profile.
func (s *CRMService) UpsertPerson(ownerID string, lead *models.Lead) (*models.Person, error) {
	var person models.Person
	err := s.db.
		Where("owner_id = ? AND profile_id = ?", ownerID, lead.CommenterProfileID).
		First(&person).Error

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query person: %w", err)
	}

	now := time.Now().UTC()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		person = models.Person{
			OwnerID:    ownerID,
			ProfileID:  lead.CommenterProfileID,
			ProfileURL: lead.CommenterURL,
			Name:       lead.CommenterName,
			Headline:   lead.CommenterHeadline,
			LastSeenAt: now,
		}
		if err := s.db.Create(&person).Error; err != nil {
			return nil, fmt.Errorf("failed to create person: %w", err)
		}
		return &person, nil
	}

	person.Name = lead.CommenterName
	person.Headline = lead.CommenterHeadline
	if lead.CommenterURL != "" {
		person.ProfileURL = lead.CommenterURL
	}
	person.LastSeenAt = now
	if err := s.db.Save(&person).Error; err != nil {
		return nil, fmt.Errorf("failed to update person: %w", err)
	}

	return &person, nil
}

// AddInteraction appends one interaction for a person.
func (s *CRMService) AddInteraction(person *models.Person, campaignID uint, leadID *uint, kind, summary string) error {
	interaction := &models.Interaction{
		PersonID:   person.ID,
		OwnerID:    person.OwnerID,
		CampaignID: campaignID,
		LeadID:     leadID,
		Kind:       kind,
		Summary:    summary,
	}
	if err := s.db.Create(interaction).Error; err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}
	return nil
}

// SyncLead upserts the person and records one interaction in a single
// call. CRM failures are logged, never propagated: losing a CRM entry must
// not fail the action that triggered it.
func (s *CRMService) SyncLead(lead *models.Lead, kind, summary string) {
	person, err := s.UpsertPerson(lead.OwnerID, lead)
	if err != nil {
		s.logger.Error("CRM person upsert failed",
			zap.Uint("lead_id", lead.ID),
			zap.Error(err))
		return
	}

	leadID := lead.ID
	if err := s.AddInteraction(person, lead.CampaignID, &leadID, kind, summary); err != nil {
		s.logger.Error("CRM interaction append failed",
			zap.Uint("lead_id", lead.ID),
			zap.Error(err))
	}
}
