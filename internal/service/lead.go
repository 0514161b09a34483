package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
)

// LeadService drives the lead state machine. Approval is the gate: it
// drafts the queued actions a lead will receive and is the only transition
// that does so.
type LeadService struct {
	config *config.ExecutorConfig
	db     *gorm.DB
	logger *zap.Logger
	events *EventRecorder
}

func NewLeadService(cfg *config.ExecutorConfig, db *gorm.DB, logger *zap.Logger, events *EventRecorder) *LeadService {
	return &LeadService{
		config: cfg,
		db:     db,
		logger: logger,
		events: events,
	}
}

// Get returns one lead scoped to its owner.
func (s *LeadService) Get(ownerID string, id uint) (*models.Lead, error) {
	var lead models.Lead
	err := s.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("lead %d não encontrado", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}
	return &lead, nil
}

// List returns the leads of one campaign, optionally filtered by status.
func (s *LeadService) List(ownerID string, campaignID uint, status string) ([]models.Lead, error) {
	query := s.db.Where("owner_id = ? AND campaign_id = ?", ownerID, campaignID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var leads []models.Lead
	if err := query.Order("created_at desc").Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, nil
}

// Approve moves a pending lead to approved and drafts its queued actions.
// The whole transition runs in one transaction so a partial draft never
// leaks out.
func (s *LeadService) Approve(ownerID string, id uint) (*models.Lead, error) {
	var lead models.Lead

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&lead).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("lead %d não encontrado", id)
			}
			return fmt.Errorf("failed to query lead: %w", err)
		}

		if lead.Status != models.LeadStatusPending {
			return apperrors.NewInvalidState("Lead já processado (status atual: %s)", lead.Status)
		}

		var campaign models.Campaign
		if err := tx.First(&campaign, lead.CampaignID).Error; err != nil {
			return fmt.Errorf("failed to query campaign: %w", err)
		}
		if campaign.Status != models.CampaignStatusActive {
			return apperrors.NewInvalidState("campanha %d não está ativa", campaign.ID)
		}

		if err := s.draftActions(tx, &campaign, &lead); err != nil {
			return err
		}

		now := time.Now().UTC()
		lead.Status = models.LeadStatusApproved
		lead.ApprovedAt = &now
		if err := tx.Save(&lead).Error; err != nil {
			return fmt.Errorf("failed to update lead: %w", err)
		}

		if err := tx.Model(&campaign).
			Update("total_approved", gorm.Expr("total_approved + 1")).Error; err != nil {
			return fmt.Errorf("failed to bump campaign counter: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(lead.CampaignID, lead.OwnerID, models.EventKindApprove, models.EventLevelInfo,
		fmt.Sprintf("lead %s aprovado", lead.CommenterName), WithLead(lead.ID))

	return &lead, nil
}

// draftActions queues the actions enabled on the campaign. The first
// draft fires on the next executor pass; every later one is pushed back
// by the stagger so one approval does not produce a burst.
func (s *LeadService) draftActions(tx *gorm.DB, campaign *models.Campaign, lead *models.Lead) error {
	now := time.Now().UTC()
	offset := time.Duration(0)

	type draft struct {
		actionType models.ActionType
		content    string
	}

	var drafts []draft
	if campaign.EnableLike {
		drafts = append(drafts, draft{models.ActionTypeLike, ""})
	}
	if campaign.EnableReply {
		drafts = append(drafts, draft{models.ActionTypeReply, lead.GeneratedReply})
	}
	if campaign.EnableDM {
		drafts = append(drafts, draft{models.ActionTypeDM, lead.GeneratedDM})
	}
	if campaign.EnableInvite {
		drafts = append(drafts, draft{models.ActionTypeInvite, ""})
	}

	for _, d := range drafts {
		var existing int64
		if err := tx.Model(&models.Action{}).
			Where("lead_id = ? AND type = ? AND status IN ?",
				lead.ID, d.actionType, []string{models.ActionStatusQueued, models.ActionStatusExecuting, models.ActionStatusDone}).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing actions: %w", err)
		}
		if existing > 0 {
			continue
		}

		action := &models.Action{
			CampaignID:        campaign.ID,
			LeadID:            lead.ID,
			OwnerID:           campaign.OwnerID,
			LinkedInAccountID: campaign.LinkedInAccountID,
			Type:              d.actionType,
			Status:            models.ActionStatusQueued,
			Content:           d.content,
			ScheduledFor:      now.Add(offset),
		}
		if err := tx.Create(action).Error; err != nil {
			return fmt.Errorf("failed to draft %s action: %w", d.actionType, err)
		}
		offset += s.config.ActionStagger
	}

	return nil
}

// Skip marks a pending lead as skipped. No actions are ever drafted for a
// skipped lead.
func (s *LeadService) Skip(ownerID string, id uint, reason string) (*models.Lead, error) {
	lead, err := s.Get(ownerID, id)
	if err != nil {
		return nil, err
	}

	if lead.Status != models.LeadStatusPending {
		return nil, apperrors.NewInvalidState("Lead já processado (status atual: %s)", lead.Status)
	}

	if reason == "" {
		reason = "descartado manualmente"
	}
	lead.Status = models.LeadStatusSkipped
	lead.SkipReason = reason
	if err := s.db.Save(lead).Error; err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	s.events.Record(lead.CampaignID, lead.OwnerID, models.EventKindSkip, models.EventLevelInfo,
		fmt.Sprintf("lead %s descartado: %s", lead.CommenterName, reason), WithLead(lead.ID))

	return lead, nil
}

// RetryGeneration clears a recorded generation failure so the next poll
// cycle sends the lead back to the model.
func (s *LeadService) RetryGeneration(ownerID string, id uint) (*models.Lead, error) {
	lead, err := s.Get(ownerID, id)
	if err != nil {
		return nil, err
	}

	if lead.Status != models.LeadStatusPending {
		return nil, apperrors.NewInvalidState("Lead já processado (status atual: %s)", lead.Status)
	}
	if lead.GenerationError == "" {
		return nil, apperrors.NewInvalidState("lead %d não tem falha de geração registrada", id)
	}

	lead.GenerationError = ""
	if err := s.db.Model(lead).Update("generation_error", "").Error; err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	s.events.Record(lead.CampaignID, lead.OwnerID, models.EventKindGenerate, models.EventLevelInfo,
		fmt.Sprintf("nova tentativa de geração solicitada para %s", lead.CommenterName), WithLead(lead.ID))

	return lead, nil
}

// EditContent overwrites the generated reply and/or DM of a lead and
// propagates the change to any still-queued action of the matching type.
// Executed actions are never rewritten.
func (s *LeadService) EditContent(ownerID string, id uint, reply, dm *string) (*models.Lead, error) {
	var lead models.Lead

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&lead).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("lead %d não encontrado", id)
			}
			return fmt.Errorf("failed to query lead: %w", err)
		}

		if lead.Status == models.LeadStatusCompleted {
			return apperrors.NewInvalidState("lead %d já concluído", id)
		}

		if reply != nil {
			lead.GeneratedReply = *reply
			if err := tx.Model(&models.Action{}).
				Where("lead_id = ? AND type = ? AND status = ?",
					lead.ID, models.ActionTypeReply, models.ActionStatusQueued).
				Update("content", *reply).Error; err != nil {
				return fmt.Errorf("failed to update queued reply: %w", err)
			}
		}
		if dm != nil {
			lead.GeneratedDM = *dm
			if err := tx.Model(&models.Action{}).
				Where("lead_id = ? AND type = ? AND status = ?",
					lead.ID, models.ActionTypeDM, models.ActionStatusQueued).
				Update("content", *dm).Error; err != nil {
				return fmt.Errorf("failed to update queued dm: %w", err)
			}
		}

		if err := tx.Save(&lead).Error; err != nil {
			return fmt.Errorf("failed to update lead: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &lead, nil
}
