package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/linkedin"
	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
)

func newCampaignService(t *testing.T, doer linkedin.Doer) (*CampaignService, *EventRecorder) {
	t.Helper()

	db := newTestDB(t)
	logger := testLogger()
	events := NewEventRecorder(db, logger)
	li := linkedin.NewClientWithDoer(testLinkedInConfig(), logger, doer)
	return NewCampaignService(testCampaignsConfig(), db, logger, li, events), events
}

func postSnapshotDoer(t *testing.T) linkedin.Doer {
	t.Helper()
	return doerFunc(func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(req.URL.Path, "/v2/posts/") {
			t.Fatalf("unexpected request %s %s", req.Method, req.URL)
		}
		return jsonResponse(200, `{
			"urn": "urn:li:activity:7123456789012345678",
			"text": "novo produto no ar",
			"author_name": "Maria Dev"
		}`), nil
	})
}

func TestCampaignCreate(t *testing.T) {
	svc, _ := newCampaignService(t, postSnapshotDoer(t))

	before := time.Now().UTC()
	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		OwnerID:           "owner-1",
		LinkedInAccountID: "acct-1",
		Name:              "Lançamento",
		PostURL:           "https://www.linkedin.com/posts/maria-dev_go-activity-7123456789012345678-Qq2w",
		EnableReply:       true,
		EnableDM:          true,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if campaign.PostURN != "urn:li:activity:7123456789012345678" {
		t.Errorf("PostURN = %q", campaign.PostURN)
	}
	if campaign.PostText != "novo produto no ar" || campaign.PostAuthor != "Maria Dev" {
		t.Errorf("snapshot not stored: %+v", campaign)
	}
	if campaign.Status != models.CampaignStatusActive {
		t.Errorf("Status = %q, want active", campaign.Status)
	}
	if !campaign.RequireApproval {
		t.Error("RequireApproval should default to true")
	}
	if campaign.WindowDays != 7 {
		t.Errorf("WindowDays = %d, want default 7", campaign.WindowDays)
	}

	wantExpiry := before.Add(7 * 24 * time.Hour)
	if campaign.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || campaign.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about %v", campaign.ExpiresAt, wantExpiry)
	}
}

func TestCampaignCreateValidation(t *testing.T) {
	svc, _ := newCampaignService(t, postSnapshotDoer(t))

	tests := []struct {
		name string
		in   CreateCampaignInput
	}{
		{
			name: "missing name",
			in:   CreateCampaignInput{OwnerID: "owner-1", PostURL: "urn:li:activity:7123456789012345678"},
		},
		{
			name: "missing owner",
			in:   CreateCampaignInput{Name: "x", PostURL: "urn:li:activity:7123456789012345678"},
		},
		{
			name: "unknown capture mode",
			in: CreateCampaignInput{
				OwnerID: "owner-1", Name: "x",
				PostURL:     "urn:li:activity:7123456789012345678",
				CaptureMode: "regex",
			},
		},
		{
			name: "keyword mode without keywords",
			in: CreateCampaignInput{
				OwnerID: "owner-1", Name: "x",
				PostURL:     "urn:li:activity:7123456789012345678",
				CaptureMode: models.CaptureModeKeyword,
			},
		},
		{
			name: "unresolvable post url",
			in: CreateCampaignInput{
				OwnerID: "owner-1", Name: "x",
				PostURL: "https://www.linkedin.com/in/maria-dev",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			if !apperrors.IsInvalidInput(err) {
				t.Errorf("error kind = %v, want InvalidInput (err: %v)", apperrors.KindOf(err), err)
			}
		})
	}
}

func TestCampaignCreateNormalizesKeywords(t *testing.T) {
	svc, _ := newCampaignService(t, postSnapshotDoer(t))

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		OwnerID: "owner-1", Name: "x",
		PostURL:     "urn:li:activity:7123456789012345678",
		CaptureMode: models.CaptureModeKeyword,
		Keywords:    []string{" quero ", `"material"`, ""},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if len(campaign.Keywords) != 2 || campaign.Keywords[0] != "quero" || campaign.Keywords[1] != "material" {
		t.Errorf("Keywords = %v, want trimmed and unquoted tokens", campaign.Keywords)
	}
}

func TestCampaignCreateActiveCap(t *testing.T) {
	db := newTestDB(t)
	logger := testLogger()
	events := NewEventRecorder(db, logger)
	li := linkedin.NewClientWithDoer(testLinkedInConfig(), logger, postSnapshotDoer(t))
	cfg := testCampaignsConfig()
	cfg.MaxActive = 1
	svc := NewCampaignService(cfg, db, logger, li, events)

	in := CreateCampaignInput{
		OwnerID: "owner-1", Name: "Primeira",
		PostURL: "urn:li:activity:7123456789012345678",
	}
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}

	in.Name = "Segunda"
	_, err := svc.Create(context.Background(), in)
	if !apperrors.IsInvalidState(err) {
		t.Fatalf("error kind = %v, want InvalidState", apperrors.KindOf(err))
	}

	// Another owner is not affected by the cap.
	in.OwnerID = "owner-2"
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("other owner's Create returned error: %v", err)
	}
}

func TestCampaignCreatePostNotFound(t *testing.T) {
	svc, _ := newCampaignService(t, doerFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(404, `{}`), nil
	}))

	_, err := svc.Create(context.Background(), CreateCampaignInput{
		OwnerID: "owner-1", Name: "x",
		PostURL: "urn:li:activity:7123456789012345678",
	})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("error kind = %v, want NotFound", apperrors.KindOf(err))
	}
}

func TestCampaignGetScopedByOwner(t *testing.T) {
	svc, _ := newCampaignService(t, postSnapshotDoer(t))
	campaign := seedCampaign(t, svc.db, nil)

	if _, err := svc.Get("owner-1", campaign.ID); err != nil {
		t.Fatalf("Get by owner returned error: %v", err)
	}

	_, err := svc.Get("intruso", campaign.ID)
	if !apperrors.IsNotFound(err) {
		t.Fatalf("error kind = %v, want NotFound for foreign owner", apperrors.KindOf(err))
	}
}

func TestCampaignClose(t *testing.T) {
	svc, events := newCampaignService(t, postSnapshotDoer(t))
	campaign := seedCampaign(t, svc.db, nil)

	closed, err := svc.Close("owner-1", campaign.ID, "")
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if closed.Status != models.CampaignStatusEnded {
		t.Errorf("Status = %q, want ended", closed.Status)
	}

	if _, err := svc.Close("owner-1", campaign.ID, ""); !apperrors.IsInvalidState(err) {
		t.Errorf("second Close error kind = %v, want InvalidState", apperrors.KindOf(err))
	}

	recorded, err := events.RecentEvents(campaign.ID, "owner-1", 10)
	if err != nil {
		t.Fatalf("RecentEvents returned error: %v", err)
	}
	if len(recorded) != 1 || recorded[0].Kind != models.EventKindClose {
		t.Errorf("expected one close event, got %+v", recorded)
	}
}

func TestCampaignCloseCancelsQueuedActions(t *testing.T) {
	svc, _ := newCampaignService(t, postSnapshotDoer(t))
	campaign := seedCampaign(t, svc.db, nil)
	lead := seedLead(t, svc.db, campaign, func(l *models.Lead) {
		l.Status = models.LeadStatusApproved
	})

	queued := &models.Action{
		CampaignID:        campaign.ID,
		LeadID:            lead.ID,
		OwnerID:           campaign.OwnerID,
		LinkedInAccountID: campaign.LinkedInAccountID,
		Type:              models.ActionTypeReply,
		Status:            models.ActionStatusQueued,
		Content:           "nunca deve sair",
		ScheduledFor:      time.Now().UTC().Add(-time.Minute),
	}
	done := &models.Action{
		CampaignID:        campaign.ID,
		LeadID:            lead.ID,
		OwnerID:           campaign.OwnerID,
		LinkedInAccountID: campaign.LinkedInAccountID,
		Type:              models.ActionTypeDM,
		Status:            models.ActionStatusDone,
		Content:           "já saiu",
		ScheduledFor:      time.Now().UTC().Add(-time.Hour),
	}
	if err := svc.db.Create(queued).Error; err != nil {
		t.Fatal(err)
	}
	if err := svc.db.Create(done).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Close("owner-1", campaign.ID, ""); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	var got models.Action
	if err := svc.db.First(&got, queued.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ActionStatusFailed {
		t.Errorf("queued action status = %q, want failed after close", got.Status)
	}
	if got.FailReason != "campanha encerrada" {
		t.Errorf("FailReason = %q, want the close reason", got.FailReason)
	}

	var gotDone models.Action
	if err := svc.db.First(&gotDone, done.ID).Error; err != nil {
		t.Fatal(err)
	}
	if gotDone.Status != models.ActionStatusDone {
		t.Errorf("executed action status = %q, history must be untouched", gotDone.Status)
	}
}

func TestCampaignExpireDue(t *testing.T) {
	svc, _ := newCampaignService(t, postSnapshotDoer(t))
	db := svc.db

	expired := seedCampaign(t, db, func(c *models.Campaign) {
		c.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})
	alive := seedCampaign(t, db, func(c *models.Campaign) {
		c.Name = "Viva"
	})

	if err := svc.ExpireDue(); err != nil {
		t.Fatalf("ExpireDue returned error: %v", err)
	}

	var got models.Campaign
	if err := db.First(&got, expired.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.CampaignStatusEnded {
		t.Errorf("expired campaign status = %q, want ended", got.Status)
	}

	var gotAlive models.Campaign
	if err := db.First(&gotAlive, alive.ID).Error; err != nil {
		t.Fatal(err)
	}
	if gotAlive.Status != models.CampaignStatusActive {
		t.Errorf("live campaign status = %q, want active", gotAlive.Status)
	}

	active, err := svc.ActiveCampaigns()
	if err != nil {
		t.Fatalf("ActiveCampaigns returned error: %v", err)
	}
	if len(active) != 1 || active[0].ID != alive.ID {
		t.Errorf("ActiveCampaigns = %+v, want only the live one", active)
	}
}
