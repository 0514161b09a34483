package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/joaomazul/LinkedFlow-sub001/internal/ai"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/linkedin"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
	"github.com/joaomazul/LinkedFlow-sub001/internal/ratelimit"
	"github.com/joaomazul/LinkedFlow-sub001/internal/service"
)

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// newTestServer wires a Server onto an in-memory database and stub
// external APIs.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := service.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cfg := &config.Config{
		LinkedIn: config.LinkedInConfig{BaseURL: "https://api.example.com", Token: "t", PageSize: 100},
		AI:       config.AIConfig{BaseURL: "https://ai.example.com/v1", Model: "gpt-4o-mini", RateLimit: 30, RateWindow: time.Hour},
		Trigger:  config.TriggerConfig{Enabled: true, Secret: "s3cret"},
		Poller:   config.PollerConfig{Enabled: true, BatchSize: 3, BatchDelay: time.Millisecond},
		Executor: config.ExecutorConfig{Enabled: true, MinActionDelay: time.Second, ActionStagger: time.Minute, RateLimit: 25, RateWindow: 24 * time.Hour},
		Campaigns: config.CampaignsConfig{
			MaxActive:         3,
			DefaultWindowDays: 7,
		},
		Stats: config.StatsConfig{Interval: time.Hour, RetentionDays: 90},
	}

	logger := zap.NewNop()
	liDoer := doerFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{
			"urn": "urn:li:activity:7123456789012345678",
			"text": "novo produto no ar",
			"author_name": "Maria Dev"
		}`), nil
	})
	aiDoer := doerFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"choices":[{"message":{"content":"{\"reply\":\"ok\",\"dm\":\"oi\"}"}}]}`), nil
	})

	li := linkedin.NewClientWithDoer(&cfg.LinkedIn, logger, liDoer)
	aiClient := ai.NewClientWithDoer(&cfg.AI, logger, aiDoer)
	limiter := ratelimit.NewFixedWindowLimiter()
	pacer := ratelimit.NewMemoryPacer()

	events := service.NewEventRecorder(db, logger)
	crm := service.NewCRMService(db, logger)
	campaignService := service.NewCampaignService(&cfg.Campaigns, db, logger, li, events)
	leadService := service.NewLeadService(&cfg.Executor, db, logger, events)
	pollerService := service.NewPollerService(&cfg.Poller, &cfg.AI, db, logger,
		li, aiClient, campaignService, leadService, crm, events, limiter)
	executorService := service.NewExecutorService(&cfg.Executor, db, logger,
		li, crm, events, limiter, pacer)
	statsUpdater := service.NewStatsUpdater(&cfg.Stats, db, logger, events)
	t.Cleanup(statsUpdater.Stop)

	srv := &Server{
		Config:          cfg,
		DB:              db,
		Router:          gin.New(),
		Logger:          logger,
		AuthService:     service.NewAuthService(&cfg.Trigger, logger),
		CampaignService: campaignService,
		LeadService:     leadService,
		PollerService:   pollerService,
		ExecutorService: executorService,
		EventRecorder:   events,
		StatsUpdater:    statsUpdater,
		Scheduler:       service.NewScheduler(&cfg.Poller, &cfg.Executor, logger, pollerService, executorService),
	}
	srv.setupRoutes()
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/campaigns", map[string]any{
		"owner_id":     "owner-1",
		"name":         "Lançamento",
		"post_url":     "https://www.linkedin.com/posts/maria-dev_go-activity-7123456789012345678-Qq2w",
		"enable_reply": true,
		"enable_dm":    true,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Campaign models.Campaign `json:"campaign"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.Campaign.PostURN != "urn:li:activity:7123456789012345678" {
		t.Errorf("PostURN = %q", created.Campaign.PostURN)
	}

	listPath := fmt.Sprintf("/api/v1/campaigns?owner_id=%s", "owner-1")
	rec = doJSON(t, srv, http.MethodGet, listPath, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	getPath := fmt.Sprintf("/api/v1/campaigns/%d", created.Campaign.ID)
	rec = doJSON(t, srv, http.MethodGet, getPath, nil, map[string]string{"X-Owner-Id": "owner-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Another owner cannot see it.
	rec = doJSON(t, srv, http.MethodGet, getPath, nil, map[string]string{"X-Owner-Id": "intruso"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", rec.Code)
	}

	closePath := fmt.Sprintf("/api/v1/campaigns/%d/close", created.Campaign.ID)
	rec = doJSON(t, srv, http.MethodPost, closePath, nil, map[string]string{"X-Owner-Id": "owner-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Closing again conflicts.
	rec = doJSON(t, srv, http.MethodPost, closePath, nil, map[string]string{"X-Owner-Id": "owner-1"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second close status = %d, want 409", rec.Code)
	}
}

func TestLeadApprovalOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	campaign := &models.Campaign{
		OwnerID:           "owner-1",
		LinkedInAccountID: "acct-1",
		Name:              "Lançamento",
		Status:            models.CampaignStatusActive,
		PostURN:           "urn:li:activity:7123456789012345678",
		EnableReply:       true,
		RequireApproval:   true,
		ExpiresAt:         time.Now().UTC().Add(24 * time.Hour),
	}
	if err := srv.DB.Create(campaign).Error; err != nil {
		t.Fatal(err)
	}
	lead := &models.Lead{
		CampaignID:         campaign.ID,
		OwnerID:            "owner-1",
		SourceCommentID:    "c1",
		CommenterProfileID: "p-1",
		CommenterName:      "Ana",
		Status:             models.LeadStatusPending,
		GeneratedReply:     "Obrigado!",
	}
	if err := srv.DB.Create(lead).Error; err != nil {
		t.Fatal(err)
	}

	owner := map[string]string{"X-Owner-Id": "owner-1"}
	approvePath := fmt.Sprintf("/api/v1/leads/%d/approve", lead.ID)

	rec := doJSON(t, srv, http.MethodPost, approvePath, nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, approvePath, nil, owner)
	if rec.Code != http.StatusConflict {
		t.Errorf("second approve status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPatch,
		fmt.Sprintf("/api/v1/leads/%d/content", lead.ID),
		map[string]any{"reply": "revisado"}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPatch,
		fmt.Sprintf("/api/v1/leads/%d/content", lead.ID),
		map[string]any{}, owner)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty edit status = %d, want 400", rec.Code)
	}
}

func TestCronEndpointsRequireSecret(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/cron/poll", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated poll status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/cron/poll", nil,
		map[string]string{"Authorization": "Bearer s3cret"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("authenticated poll status = %d, want 202", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/cron/execute", nil,
		map[string]string{"Authorization": "Bearer errado"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret execute status = %d, want 401", rec.Code)
	}
}
