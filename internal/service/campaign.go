package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/linkedin"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
	"github.com/joaomazul/LinkedFlow-sub001/pkg/util"
)

// CampaignService owns the campaign lifecycle: creation (post resolution,
// snapshot, active-cap enforcement), manual close and expiry.
type CampaignService struct {
	config   *config.CampaignsConfig
	db       *gorm.DB
	logger   *zap.Logger
	linkedIn *linkedin.Client
	events   *EventRecorder
}

func NewCampaignService(cfg *config.CampaignsConfig, db *gorm.DB, logger *zap.Logger, li *linkedin.Client, events *EventRecorder) *CampaignService {
	return &CampaignService{
		config:   cfg,
		db:       db,
		logger:   logger,
		linkedIn: li,
		events:   events,
	}
}

type CreateCampaignInput struct {
	OwnerID           string   `json:"owner_id"`
	LinkedInAccountID string   `json:"linkedin_account_id"`
	Name              string   `json:"name"`
	PostURL           string   `json:"post_url"`
	CaptureMode       string   `json:"capture_mode"`
	Keywords          []string `json:"keywords"`
	EnableLike        bool     `json:"enable_like"`
	EnableReply       bool     `json:"enable_reply"`
	EnableDM          bool     `json:"enable_dm"`
	EnableInvite      bool     `json:"enable_invite"`
	ReplyTemplate     string   `json:"reply_template"`
	DMTemplate        string   `json:"dm_template"`
	MagnetLink        string   `json:"magnet_link"`
	MagnetLabel       string   `json:"magnet_label"`
	PersonaText       string   `json:"persona_text"`
	RequireApproval   *bool    `json:"require_approval"`
	WindowDays        int      `json:"window_days"`
}

// Create resolves the target post, snapshots it and persists the campaign.
// Post identity is immutable after this point.
func (s *CampaignService) Create(ctx context.Context, in CreateCampaignInput) (*models.Campaign, error) {
	if in.OwnerID == "" || in.Name == "" {
		return nil, apperrors.NewInvalidInput("owner_id e name são obrigatórios")
	}
	if in.CaptureMode == "" {
		in.CaptureMode = models.CaptureModeAny
	}
	if in.CaptureMode != models.CaptureModeAny && in.CaptureMode != models.CaptureModeKeyword {
		return nil, apperrors.NewInvalidInput("capture_mode inválido: %s", in.CaptureMode)
	}

	// Normalizes spacing and stray quotes around each keyword.
	keywords := util.ParseKeywords(strings.Join(in.Keywords, ","))
	if in.CaptureMode == models.CaptureModeKeyword && len(keywords) == 0 {
		return nil, apperrors.NewInvalidInput("capture_mode=keyword exige ao menos uma palavra-chave")
	}
	if in.WindowDays <= 0 {
		in.WindowDays = s.config.DefaultWindowDays
	}

	var activeCount int64
	if err := s.db.Model(&models.Campaign{}).
		Where("owner_id = ? AND status = ?", in.OwnerID, models.CampaignStatusActive).
		Count(&activeCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count active campaigns: %w", err)
	}
	if activeCount >= int64(s.config.MaxActive) {
		return nil, apperrors.NewInvalidState(
			"limite de %d campanhas ativas atingido", s.config.MaxActive)
	}

	postURN, err := linkedin.ResolvePostURN(in.PostURL)
	if err != nil {
		return nil, err
	}

	post, err := s.linkedIn.GetPost(ctx, postURN)
	if err != nil {
		return nil, err
	}

	requireApproval := true
	if in.RequireApproval != nil {
		requireApproval = *in.RequireApproval
	}

	now := time.Now().UTC()
	campaign := &models.Campaign{
		OwnerID:           in.OwnerID,
		LinkedInAccountID: in.LinkedInAccountID,
		Name:              in.Name,
		Status:            models.CampaignStatusActive,
		PostURN:           post.URN,
		PostText:          post.Text,
		PostAuthor:        post.AuthorName,
		CaptureMode:       in.CaptureMode,
		Keywords:          models.StringArray(keywords),
		EnableLike:        in.EnableLike,
		EnableReply:       in.EnableReply,
		EnableDM:          in.EnableDM,
		EnableInvite:      in.EnableInvite,
		ReplyTemplate:     in.ReplyTemplate,
		DMTemplate:        in.DMTemplate,
		MagnetLink:        in.MagnetLink,
		MagnetLabel:       in.MagnetLabel,
		PersonaText:       in.PersonaText,
		RequireApproval:   requireApproval,
		WindowDays:        in.WindowDays,
		ExpiresAt:         now.Add(time.Duration(in.WindowDays) * 24 * time.Hour),
	}

	if err := s.db.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.logger.Info("Campaign created",
		zap.Uint("campaign_id", campaign.ID),
		zap.String("owner_id", campaign.OwnerID),
		zap.String("post_urn", campaign.PostURN))

	return campaign, nil
}

// Get returns one campaign scoped to its owner.
func (s *CampaignService) Get(ownerID string, id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	err := s.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("campanha %d não encontrada", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign: %w", err)
	}
	return &campaign, nil
}

// List returns all campaigns of one owner, newest first.
func (s *CampaignService) List(ownerID string) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at desc").Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// Close manually ends a campaign.
func (s *CampaignService) Close(ownerID string, id uint, reason string) (*models.Campaign, error) {
	campaign, err := s.Get(ownerID, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == models.CampaignStatusEnded {
		return nil, apperrors.NewInvalidState("campanha %d já encerrada", id)
	}

	campaign.Status = models.CampaignStatusEnded
	if err := s.db.Save(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to close campaign: %w", err)
	}
	s.cancelQueuedActions(campaign.ID)

	if reason == "" {
		reason = "encerramento manual"
	}
	s.events.Record(campaign.ID, campaign.OwnerID, models.EventKindClose, models.EventLevelInfo, reason)

	return campaign, nil
}

// cancelQueuedActions voids the pending queue of an ended campaign so the
// executor never acts on its behalf again.
func (s *CampaignService) cancelQueuedActions(campaignID uint) {
	err := s.db.Model(&models.Action{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.ActionStatusQueued).
		Updates(map[string]any{
			"status":      models.ActionStatusFailed,
			"fail_reason": "campanha encerrada",
		}).Error
	if err != nil {
		s.logger.Error("Failed to cancel queued actions",
			zap.Uint("campaign_id", campaignID),
			zap.Error(err))
	}
}

// MarkEnded closes a campaign from inside the pipeline (post deleted,
// window expired), recording why.
func (s *CampaignService) MarkEnded(campaign *models.Campaign, reason string) error {
	campaign.Status = models.CampaignStatusEnded
	if err := s.db.Model(campaign).Update("status", models.CampaignStatusEnded).Error; err != nil {
		return fmt.Errorf("failed to end campaign: %w", err)
	}
	s.cancelQueuedActions(campaign.ID)
	s.events.Record(campaign.ID, campaign.OwnerID, models.EventKindClose, models.EventLevelWarn, reason)
	return nil
}

// ExpireDue ends every active campaign whose window has elapsed. Called at
// the start of each poll cycle.
func (s *CampaignService) ExpireDue() error {
	var campaigns []models.Campaign
	now := time.Now().UTC()
	if err := s.db.
		Where("status = ? AND expires_at <= ?", models.CampaignStatusActive, now).
		Find(&campaigns).Error; err != nil {
		return fmt.Errorf("failed to query expired campaigns: %w", err)
	}

	for _, campaign := range campaigns {
		c := campaign
		if err := s.MarkEnded(&c, "janela da campanha expirada"); err != nil {
			s.logger.Error("Failed to expire campaign",
				zap.Uint("campaign_id", c.ID),
				zap.Error(err))
		}
	}

	return nil
}

// ActiveCampaigns returns every active, non-expired campaign across all
// owners, for the poller.
func (s *CampaignService) ActiveCampaigns() ([]models.Campaign, error) {
	var campaigns []models.Campaign
	now := time.Now().UTC()
	err := s.db.
		Where("status = ? AND expires_at > ?", models.CampaignStatusActive, now).
		Order("owner_id, id").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	return campaigns, nil
}
