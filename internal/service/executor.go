package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/linkedin"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
	"github.com/joaomazul/LinkedFlow-sub001/internal/ratelimit"
)

// ExecutorService drains the action queue: every cycle it claims due
// actions and performs them against the LinkedIn API, under a per-account
// daily quota and a minimum delay between consecutive actions of the same
// account.
type ExecutorService struct {
	config   *config.ExecutorConfig
	db       *gorm.DB
	logger   *zap.Logger
	linkedIn *linkedin.Client
	crm      *CRMService
	events   *EventRecorder
	limiter  ratelimit.Limiter
	pacer    ratelimit.Pacer
}

func NewExecutorService(
	cfg *config.ExecutorConfig,
	db *gorm.DB,
	logger *zap.Logger,
	li *linkedin.Client,
	crm *CRMService,
	events *EventRecorder,
	limiter ratelimit.Limiter,
	pacer ratelimit.Pacer,
) *ExecutorService {
	return &ExecutorService{
		config:   cfg,
		db:       db,
		logger:   logger,
		linkedIn: li,
		crm:      crm,
		events:   events,
		limiter:  limiter,
		pacer:    pacer,
	}
}

// ExecSummary reports one executor cycle.
type ExecSummary struct {
	RunID    string `json:"run_id"`
	Executed int    `json:"executed"`
	Deferred int    `json:"deferred"`
	Failed   int    `json:"failed"`
}

// RunOnce executes every due action, account by account. Actions of one
// account run strictly in sequence so the pacer's minimum delay holds.
func (s *ExecutorService) RunOnce(ctx context.Context) (*ExecSummary, error) {
	summary := &ExecSummary{RunID: uuid.NewString()}

	// Only actions whose campaign is still active are eligible. Paused
	// campaigns keep their queue frozen; closing a campaign cancels it.
	var due []models.Action
	err := s.db.
		Joins("JOIN campaigns ON campaigns.id = actions.campaign_id").
		Where("campaigns.status = ?", models.CampaignStatusActive).
		Where("actions.status = ? AND actions.scheduled_for <= ?",
			models.ActionStatusQueued, time.Now().UTC()).
		Order("actions.scheduled_for").
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due actions: %w", err)
	}

	byAccount := make(map[string][]models.Action)
	var accounts []string
	for _, a := range due {
		if _, seen := byAccount[a.LinkedInAccountID]; !seen {
			accounts = append(accounts, a.LinkedInAccountID)
		}
		byAccount[a.LinkedInAccountID] = append(byAccount[a.LinkedInAccountID], a)
	}

	for _, account := range accounts {
		for i := range byAccount[account] {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}

			action := byAccount[account][i]
			outcome := s.executeOne(ctx, &action)
			switch outcome {
			case outcomeDone:
				summary.Executed++
			case outcomeFailed:
				summary.Failed++
			case outcomeDeferred:
				summary.Deferred++
			}
			if outcome == outcomeAccountExhausted {
				summary.Deferred += len(byAccount[account]) - i
				break
			}
		}
	}

	s.logger.Info("Execute cycle finished",
		zap.String("run_id", summary.RunID),
		zap.Int("executed", summary.Executed),
		zap.Int("deferred", summary.Deferred),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

type execOutcome int

const (
	outcomeDone execOutcome = iota
	outcomeFailed
	outcomeDeferred
	outcomeAccountExhausted
)

// executeOne claims and performs a single action. The claim is a
// conditional update so two concurrent cycles never execute the same
// action twice.
func (s *ExecutorService) executeOne(ctx context.Context, action *models.Action) execOutcome {
	claim := s.db.Model(&models.Action{}).
		Where("id = ? AND status = ?", action.ID, models.ActionStatusQueued).
		Update("status", models.ActionStatusExecuting)
	if claim.Error != nil {
		s.logger.Error("Failed to claim action", zap.Uint("action_id", action.ID), zap.Error(claim.Error))
		return outcomeDeferred
	}
	if claim.RowsAffected == 0 {
		// Another instance got there first.
		return outcomeDeferred
	}

	var lead models.Lead
	if err := s.db.First(&lead, action.LeadID).Error; err != nil {
		s.fail(action, fmt.Sprintf("lead não encontrado: %v", err))
		return outcomeFailed
	}
	var campaign models.Campaign
	if err := s.db.First(&campaign, action.CampaignID).Error; err != nil {
		s.fail(action, fmt.Sprintf("campanha não encontrada: %v", err))
		return outcomeFailed
	}
	if campaign.Status != models.CampaignStatusActive {
		// The due-action query filters on campaign status; this guards
		// the race with a close happening mid-cycle.
		s.requeue(action, action.ScheduledFor)
		return outcomeDeferred
	}

	accountKey := "action:" + action.LinkedInAccountID

	// The pacer has no side effect until Record, so it runs before a
	// quota unit is spent on an action that will only be requeued.
	if err := s.pacer.Ready(accountKey, s.config.MinActionDelay); err != nil {
		var appErr *apperrors.Error
		retryAt := time.Now().UTC().Add(s.config.MinActionDelay)
		if errors.As(err, &appErr) && !appErr.ResetAt.IsZero() {
			retryAt = appErr.ResetAt
		}
		s.requeue(action, retryAt)
		return outcomeAccountExhausted
	}

	quota := s.limiter.Check(accountKey, s.config.RateLimit, s.config.RateWindow)
	if !quota.Allowed {
		s.requeue(action, quota.ResetAt)
		s.logger.Warn("Account quota exhausted",
			zap.String("account", action.LinkedInAccountID),
			zap.Time("reset_at", quota.ResetAt))
		return outcomeAccountExhausted
	}

	if err := s.perform(ctx, action, &lead, &campaign); err != nil {
		if apperrors.IsRateLimited(err) {
			var appErr *apperrors.Error
			retryAt := time.Now().UTC().Add(s.config.MinActionDelay)
			if errors.As(err, &appErr) && !appErr.ResetAt.IsZero() {
				retryAt = appErr.ResetAt
			}
			s.requeue(action, retryAt)
			return outcomeAccountExhausted
		}

		s.fail(action, err.Error())
		s.events.Record(action.CampaignID, action.OwnerID, models.EventKindError, models.EventLevelError,
			fmt.Sprintf("ação %s falhou: %v", action.Type, err),
			WithLead(action.LeadID), WithAction(action.ID))
		return outcomeFailed
	}

	s.pacer.Record(accountKey)

	now := time.Now().UTC()
	action.Status = models.ActionStatusDone
	action.ExecutedAt = &now
	if err := s.db.Save(action).Error; err != nil {
		s.logger.Error("Failed to finalize action", zap.Uint("action_id", action.ID), zap.Error(err))
	}

	s.events.Record(action.CampaignID, action.OwnerID, models.EventKindExecute, models.EventLevelInfo,
		fmt.Sprintf("ação %s executada para %s", action.Type, lead.CommenterName),
		WithLead(lead.ID), WithAction(action.ID))
	s.crm.SyncLead(&lead, interactionKindFor(action.Type), crmSummaryFor(action, &campaign))

	s.completeLeadIfDrained(&lead, &campaign)

	return outcomeDone
}

// perform dispatches one action against the API by its type.
func (s *ExecutorService) perform(ctx context.Context, action *models.Action, lead *models.Lead, campaign *models.Campaign) error {
	switch action.Type {
	case models.ActionTypeLike:
		return s.linkedIn.LikePost(ctx, campaign.PostURN)
	case models.ActionTypeReply:
		return s.linkedIn.PostReply(ctx, campaign.PostURN, action.Content)
	case models.ActionTypeDM:
		return s.linkedIn.SendMessage(ctx, lead.CommenterProfileID, action.Content)
	case models.ActionTypeInvite:
		return s.linkedIn.SendInvite(ctx, lead.CommenterProfileID, action.Content)
	default:
		return apperrors.NewInvalidState("tipo de ação desconhecido: %s", action.Type)
	}
}

// completeLeadIfDrained moves an approved lead to completed once nothing
// remains queued or executing for it.
func (s *ExecutorService) completeLeadIfDrained(lead *models.Lead, campaign *models.Campaign) {
	if lead.Status != models.LeadStatusApproved {
		return
	}

	var remaining int64
	err := s.db.Model(&models.Action{}).
		Where("lead_id = ? AND status IN ?",
			lead.ID, []string{models.ActionStatusQueued, models.ActionStatusExecuting}).
		Count(&remaining).Error
	if err != nil {
		s.logger.Error("Failed to count remaining actions", zap.Uint("lead_id", lead.ID), zap.Error(err))
		return
	}
	if remaining > 0 {
		return
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(lead).Update("status", models.LeadStatusCompleted).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", campaign.ID).
			Update("total_completed", gorm.Expr("total_completed + 1")).Error
	})
	if err != nil {
		s.logger.Error("Failed to complete lead", zap.Uint("lead_id", lead.ID), zap.Error(err))
		return
	}

	s.events.Record(campaign.ID, campaign.OwnerID, models.EventKindExecute, models.EventLevelInfo,
		fmt.Sprintf("lead %s concluído", lead.CommenterName), WithLead(lead.ID))
}

func (s *ExecutorService) requeue(action *models.Action, at time.Time) {
	err := s.db.Model(action).Updates(map[string]any{
		"status":        models.ActionStatusQueued,
		"scheduled_for": at,
	}).Error
	if err != nil {
		s.logger.Error("Failed to requeue action", zap.Uint("action_id", action.ID), zap.Error(err))
	}
}

func (s *ExecutorService) fail(action *models.Action, reason string) {
	err := s.db.Model(action).Updates(map[string]any{
		"status":      models.ActionStatusFailed,
		"fail_reason": reason,
	}).Error
	if err != nil {
		s.logger.Error("Failed to mark action failed", zap.Uint("action_id", action.ID), zap.Error(err))
	}
}

func interactionKindFor(t models.ActionType) string {
	switch t {
	case models.ActionTypeReply:
		return models.InteractionKindReply
	case models.ActionTypeDM:
		return models.InteractionKindDM
	case models.ActionTypeInvite:
		return models.InteractionKindInvite
	default:
		return models.InteractionKindLike
	}
}

func crmSummaryFor(action *models.Action, campaign *models.Campaign) string {
	switch action.Type {
	case models.ActionTypeReply:
		return fmt.Sprintf("resposta pública enviada na campanha %q", campaign.Name)
	case models.ActionTypeDM:
		return fmt.Sprintf("DM enviado na campanha %q", campaign.Name)
	case models.ActionTypeInvite:
		return fmt.Sprintf("convite de conexão enviado na campanha %q", campaign.Name)
	default:
		return fmt.Sprintf("curtida registrada na campanha %q", campaign.Name)
	}
}
