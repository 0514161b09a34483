package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/service"
)

// ownerID resolves the acting owner from the X-Owner-Id header, falling
// back to the owner_id query parameter.
func ownerID(c *gin.Context) string {
	if owner := c.GetHeader("X-Owner-Id"); owner != "" {
		return owner
	}
	return c.Query("owner_id")
}

func (s *Server) renderError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "erro interno"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) handleTriggerPoll(c *gin.Context) {
	if !s.Config.Poller.Enabled {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}

	// The cycle can outlive the HTTP request; run it detached.
	go func() {
		if _, err := s.PollerService.RunOnce(context.Background()); err != nil {
			s.Logger.Error("Triggered poll failed", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleTriggerExecute(c *gin.Context) {
	if !s.Config.Executor.Enabled {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}

	go func() {
		if _, err := s.ExecutorService.RunOnce(context.Background()); err != nil {
			s.Logger.Error("Triggered execute failed", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleCreateCampaign(c *gin.Context) {
	var in service.CreateCampaignInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	if in.OwnerID == "" {
		in.OwnerID = ownerID(c)
	}

	campaign, err := s.CampaignService.Create(c.Request.Context(), in)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"campaign": campaign})
}

func (s *Server) handleListCampaigns(c *gin.Context) {
	campaigns, err := s.CampaignService.List(ownerID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

func (s *Server) handleGetCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	campaign, err := s.CampaignService.Get(ownerID(c), id)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

func (s *Server) handleCloseCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	campaign, err := s.CampaignService.Close(ownerID(c), id, body.Reason)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

func (s *Server) handleListLeads(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	leads, err := s.LeadService.List(ownerID(c), id, c.Query("status"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

func (s *Server) handleListEvents(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := s.EventRecorder.RecentEvents(id, ownerID(c), limit)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleCampaignStats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	days := 30
	if raw := c.Query("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 365 {
			days = parsed
		}
	}

	stats, err := s.StatsUpdater.DailyStats(ownerID(c), id, days)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleApproveLead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	lead, err := s.LeadService.Approve(ownerID(c), id)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

func (s *Server) handleSkipLead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	lead, err := s.LeadService.Skip(ownerID(c), id, body.Reason)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

func (s *Server) handleRetryGeneration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	lead, err := s.LeadService.RetryGeneration(ownerID(c), id)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

func (s *Server) handleEditLeadContent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		Reply *string `json:"reply"`
		DM    *string `json:"dm"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	if body.Reply == nil && body.DM == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "informe reply e/ou dm"})
		return
	}

	lead, err := s.LeadService.EditContent(ownerID(c), id, body.Reply, body.DM)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lead": lead})
}
