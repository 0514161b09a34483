package service

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
)

// newTestDB opens an in-memory database with the full schema applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// doerFunc adapts a function to the HTTP client interface of the external
// API clients.
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

func testCampaignsConfig() *config.CampaignsConfig {
	return &config.CampaignsConfig{
		MaxActive:         3,
		DefaultWindowDays: 7,
	}
}

func testExecutorConfig() *config.ExecutorConfig {
	return &config.ExecutorConfig{
		Enabled:        true,
		Interval:       5 * time.Minute,
		MinActionDelay: 45 * time.Second,
		ActionStagger:  3 * time.Minute,
		RateLimit:      25,
		RateWindow:     24 * time.Hour,
	}
}

func testPollerConfig() *config.PollerConfig {
	return &config.PollerConfig{
		Enabled:    true,
		Interval:   10 * time.Minute,
		BatchSize:  3,
		BatchDelay: time.Millisecond,
	}
}

func testAIConfig() *config.AIConfig {
	return &config.AIConfig{
		BaseURL:    "https://ai.example.com/v1",
		APIKey:     "test-key",
		Model:      "gpt-4o-mini",
		MaxTokens:  600,
		RateLimit:  30,
		RateWindow: time.Hour,
	}
}

func testLinkedInConfig() *config.LinkedInConfig {
	return &config.LinkedInConfig{
		BaseURL:  "https://api.example.com",
		Token:    "test-token",
		PageSize: 100,
	}
}

// seedCampaign inserts an active campaign with sensible defaults,
// overridable through mutate.
func seedCampaign(t *testing.T, db *gorm.DB, mutate func(*models.Campaign)) *models.Campaign {
	t.Helper()

	campaign := &models.Campaign{
		OwnerID:           "owner-1",
		LinkedInAccountID: "acct-1",
		Name:              "Lançamento",
		Status:            models.CampaignStatusActive,
		PostURN:           "urn:li:activity:7123456789012345678",
		PostText:          "novo produto no ar",
		PostAuthor:        "Maria Dev",
		CaptureMode:       models.CaptureModeAny,
		EnableReply:       true,
		EnableDM:          true,
		RequireApproval:   true,
		WindowDays:        7,
		ExpiresAt:         time.Now().UTC().Add(7 * 24 * time.Hour),
	}
	if mutate != nil {
		mutate(campaign)
	}
	if err := db.Create(campaign).Error; err != nil {
		t.Fatalf("failed to seed campaign: %v", err)
	}
	return campaign
}

var seededComments atomic.Uint64

// seedLead inserts a pending lead tied to the campaign, overridable
// through mutate.
func seedLead(t *testing.T, db *gorm.DB, campaign *models.Campaign, mutate func(*models.Lead)) *models.Lead {
	t.Helper()

	lead := &models.Lead{
		CampaignID:         campaign.ID,
		OwnerID:            campaign.OwnerID,
		SourceCommentID:    fmt.Sprintf("c-%d", seededComments.Add(1)),
		CommenterProfileID: "p-1",
		CommenterName:      "Ana Souza",
		CommenterHeadline:  "Head de Marketing",
		CommentText:        "quero saber mais",
		Status:             models.LeadStatusPending,
		GeneratedReply:     "Obrigado, Ana!",
		GeneratedDM:        "Oi Ana, segue o link",
	}
	if mutate != nil {
		mutate(lead)
	}
	if err := db.Create(lead).Error; err != nil {
		t.Fatalf("failed to seed lead: %v", err)
	}
	return lead
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
