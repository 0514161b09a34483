package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joaomazul/LinkedFlow-sub001/internal/ai"
	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/linkedin"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
	"github.com/joaomazul/LinkedFlow-sub001/internal/ratelimit"
	"github.com/joaomazul/LinkedFlow-sub001/pkg/util"
)

// PollerService runs the capture half of the pipeline: it reads new
// comments on every active campaign's post, turns matching commenters into
// leads, generates their content and auto-approves when the campaign does
// not gate on an operator.
type PollerService struct {
	config    *config.PollerConfig
	aiConfig  *config.AIConfig
	db        *gorm.DB
	logger    *zap.Logger
	linkedIn  *linkedin.Client
	ai        *ai.Client
	campaigns *CampaignService
	leads     *LeadService
	crm       *CRMService
	events    *EventRecorder
	limiter   ratelimit.Limiter
}

func NewPollerService(
	cfg *config.PollerConfig,
	aiCfg *config.AIConfig,
	db *gorm.DB,
	logger *zap.Logger,
	li *linkedin.Client,
	aiClient *ai.Client,
	campaigns *CampaignService,
	leads *LeadService,
	crm *CRMService,
	events *EventRecorder,
	limiter ratelimit.Limiter,
) *PollerService {
	return &PollerService{
		config:    cfg,
		aiConfig:  aiCfg,
		db:        db,
		logger:    logger,
		linkedIn:  li,
		ai:        aiClient,
		campaigns: campaigns,
		leads:     leads,
		crm:       crm,
		events:    events,
		limiter:   limiter,
	}
}

// PollSummary reports one poll cycle.
type PollSummary struct {
	RunID     string `json:"run_id"`
	Campaigns int    `json:"campaigns"`
	NewLeads  int    `json:"new_leads"`
	Generated int    `json:"generated"`
	Errors    int    `json:"errors"`
}

// RunOnce executes one full poll cycle. Campaigns of different owners are
// processed concurrently up to the batch size; campaigns of the same owner
// stay sequential so one account never hits the API in parallel with
// itself.
func (s *PollerService) RunOnce(ctx context.Context) (*PollSummary, error) {
	summary := &PollSummary{RunID: uuid.NewString()}

	if err := s.campaigns.ExpireDue(); err != nil {
		s.logger.Error("Failed to expire campaigns", zap.Error(err))
	}

	campaigns, err := s.campaigns.ActiveCampaigns()
	if err != nil {
		return nil, err
	}
	summary.Campaigns = len(campaigns)

	byOwner := make(map[string][]models.Campaign)
	for _, c := range campaigns {
		byOwner[c.OwnerID] = append(byOwner[c.OwnerID], c)
	}

	type result struct {
		newLeads  int
		generated int
		failed    bool
	}
	results := make(chan result, len(campaigns))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.BatchSize)

	for owner, ownerCampaigns := range byOwner {
		owner, ownerCampaigns := owner, ownerCampaigns
		group.Go(func() error {
			for i := range ownerCampaigns {
				if i > 0 {
					select {
					case <-groupCtx.Done():
						return groupCtx.Err()
					case <-time.After(s.config.BatchDelay):
					}
				}

				campaign := ownerCampaigns[i]
				newLeads, generated, err := s.pollCampaign(groupCtx, &campaign)
				if err != nil {
					s.logger.Error("Campaign poll failed",
						zap.String("run_id", summary.RunID),
						zap.Uint("campaign_id", campaign.ID),
						zap.String("owner_id", owner),
						zap.Error(err))
					s.events.Record(campaign.ID, campaign.OwnerID,
						models.EventKindError, models.EventLevelError,
						fmt.Sprintf("falha na varredura: %v", err))
					results <- result{failed: true}
					continue
				}
				results <- result{newLeads: newLeads, generated: generated}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}
	close(results)

	for r := range results {
		summary.NewLeads += r.newLeads
		summary.Generated += r.generated
		if r.failed {
			summary.Errors++
		}
	}

	s.logger.Info("Poll cycle finished",
		zap.String("run_id", summary.RunID),
		zap.Int("campaigns", summary.Campaigns),
		zap.Int("new_leads", summary.NewLeads),
		zap.Int("generated", summary.Generated),
		zap.Int("errors", summary.Errors))

	return summary, nil
}

// pollCampaign reads the campaign's comments, captures the new ones and
// generates content for pending leads still missing it.
func (s *PollerService) pollCampaign(ctx context.Context, campaign *models.Campaign) (int, int, error) {
	comments, err := s.linkedIn.ListComments(ctx, campaign.PostURN)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// The monitored post is gone; the campaign has nothing left
			// to watch.
			if endErr := s.campaigns.MarkEnded(campaign, "post removido ou tornado privado"); endErr != nil {
				return 0, 0, endErr
			}
			return 0, 0, nil
		}
		return 0, 0, err
	}

	fresh := commentsAfterCursor(comments, campaign.LastSeenCommentID)

	// The cursor only advances over comments that were handled: filtered
	// out by a rule or persisted as a lead. It stops right before the
	// first capture failure so the next cycle retries that comment.
	newLeads := 0
	cursor := campaign.LastSeenCommentID
	advance := true
	for i := range fresh {
		comment := &fresh[i]
		if comment.ActorID == campaign.LinkedInAccountID ||
			(campaign.CaptureMode == models.CaptureModeKeyword &&
				!util.ContainsAnyKeyword(comment.Text, campaign.Keywords)) {
			if advance {
				cursor = comment.ID
			}
			continue
		}

		created, err := s.captureLead(campaign, comment)
		if err != nil {
			s.logger.Error("Lead capture failed",
				zap.Uint("campaign_id", campaign.ID),
				zap.String("comment_id", comment.ID),
				zap.Error(err))
			advance = false
			continue
		}
		if created {
			newLeads++
		}
		if advance {
			cursor = comment.ID
		}
	}

	if cursor != campaign.LastSeenCommentID {
		campaign.LastSeenCommentID = cursor
		if err := s.db.Model(campaign).
			Update("last_seen_comment_id", cursor).Error; err != nil {
			return newLeads, 0, fmt.Errorf("failed to advance cursor: %w", err)
		}
	}

	generated, err := s.generatePending(ctx, campaign)
	if err != nil {
		return newLeads, generated, err
	}

	if newLeads > 0 {
		s.events.Record(campaign.ID, campaign.OwnerID, models.EventKindPoll, models.EventLevelInfo,
			fmt.Sprintf("%d novos leads capturados", newLeads))
	}

	return newLeads, generated, nil
}

// commentsAfterCursor slices off everything up to and including the cursor
// comment. A cursor that no longer appears in the listing means the page
// shifted under us; the whole listing is reprocessed and the unique index
// on (campaign_id, source_comment_id) absorbs the duplicates.
func commentsAfterCursor(comments []linkedin.Comment, cursor string) []linkedin.Comment {
	if cursor == "" {
		return comments
	}
	for i := range comments {
		if comments[i].ID == cursor {
			return comments[i+1:]
		}
	}
	return comments
}

// captureLead inserts one lead, reporting whether the row is new. The
// insert is idempotent: re-seeing a comment is a no-op.
func (s *PollerService) captureLead(campaign *models.Campaign, comment *linkedin.Comment) (bool, error) {
	commentedAt := comment.CreatedAt
	lead := &models.Lead{
		CampaignID:         campaign.ID,
		OwnerID:            campaign.OwnerID,
		SourceCommentID:    comment.ID,
		CommenterProfileID: comment.ActorID,
		CommenterURL:       comment.ActorProfileURL,
		CommenterName:      comment.ActorName,
		CommenterHeadline:  comment.ActorHeadline,
		CommentText:        comment.Text,
		CommentedAt:        &commentedAt,
		Status:             models.LeadStatusPending,
	}

	var created bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "source_comment_id"}},
			DoNothing: true,
		}).Create(lead)
		if res.Error != nil {
			return fmt.Errorf("failed to insert lead: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true

		return tx.Model(&models.Campaign{}).
			Where("id = ?", campaign.ID).
			Update("total_captured", gorm.Expr("total_captured + 1")).Error
	})
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	s.events.Record(campaign.ID, campaign.OwnerID, models.EventKindCapture, models.EventLevelInfo,
		fmt.Sprintf("lead %s capturado", lead.CommenterName), WithLead(lead.ID))
	s.crm.SyncLead(lead, models.InteractionKindCaptured,
		fmt.Sprintf("comentou no post da campanha %q", campaign.Name))

	return true, nil
}

// generatePending writes reply/DM content for pending leads that still
// lack it. Generation is quota-gated per owner. Leads deferred by the
// quota or a transient API error come back on the next cycle; a fatal
// generation failure is recorded on the lead and excluded from the sweep
// until an operator retries it.
func (s *PollerService) generatePending(ctx context.Context, campaign *models.Campaign) (int, error) {
	var pending []models.Lead
	err := s.db.
		Where("campaign_id = ? AND status = ? AND generated_reply = '' AND generation_error = ''",
			campaign.ID, models.LeadStatusPending).
		Order("created_at").
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query pending leads: %w", err)
	}

	generated := 0
	for i := range pending {
		lead := &pending[i]

		quota := s.limiter.Check("ai:gen:"+campaign.OwnerID, s.aiConfig.RateLimit, s.aiConfig.RateWindow)
		if !quota.Allowed {
			s.logger.Warn("Generation quota exhausted, deferring remaining leads",
				zap.String("owner_id", campaign.OwnerID),
				zap.Time("reset_at", quota.ResetAt))
			break
		}

		content, err := s.ai.GenerateLeadContent(ctx, ai.GenerateInput{
			CampaignName:  campaign.Name,
			PersonaText:   campaign.PersonaText,
			PostText:      campaign.PostText,
			LeadName:      lead.CommenterName,
			LeadHeadline:  lead.CommenterHeadline,
			CommentText:   lead.CommentText,
			MagnetLink:    campaign.MagnetLink,
			MagnetLabel:   campaign.MagnetLabel,
			ReplyTemplate: campaign.ReplyTemplate,
			DMTemplate:    campaign.DMTemplate,
		})
		if err != nil {
			s.events.Record(campaign.ID, campaign.OwnerID, models.EventKindError, models.EventLevelWarn,
				fmt.Sprintf("geração de conteúdo falhou: %v", err), WithLead(lead.ID))
			if apperrors.IsRateLimited(err) {
				break
			}
			if apperrors.IsGenerationFailed(err) {
				if dbErr := s.db.Model(lead).
					Update("generation_error", util.Truncate(err.Error(), 450)).Error; dbErr != nil {
					s.logger.Error("Failed to record generation failure",
						zap.Uint("lead_id", lead.ID), zap.Error(dbErr))
				}
			}
			continue
		}

		lead.GeneratedReply = content.Reply
		lead.GeneratedDM = content.DM
		if err := s.db.Model(lead).Updates(map[string]any{
			"generated_reply": content.Reply,
			"generated_dm":    content.DM,
		}).Error; err != nil {
			return generated, fmt.Errorf("failed to store generated content: %w", err)
		}
		generated++

		s.events.Record(campaign.ID, campaign.OwnerID, models.EventKindGenerate, models.EventLevelInfo,
			fmt.Sprintf("conteúdo gerado para %s", lead.CommenterName), WithLead(lead.ID))

		if !campaign.RequireApproval {
			if _, err := s.leads.Approve(campaign.OwnerID, lead.ID); err != nil {
				s.logger.Error("Auto-approval failed",
					zap.Uint("lead_id", lead.ID),
					zap.Error(err))
			}
		}
	}

	return generated, nil
}
