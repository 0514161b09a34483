package service

import (
	"testing"

	"github.com/joaomazul/LinkedFlow-sub001/internal/models"
)

func TestCRMUpsertPerson(t *testing.T) {
	db := newTestDB(t)
	crm := NewCRMService(db, testLogger())
	campaign := seedCampaign(t, db, nil)
	lead := seedLead(t, db, campaign, nil)

	person, err := crm.UpsertPerson("owner-1", lead)
	if err != nil {
		t.Fatalf("UpsertPerson returned error: %v", err)
	}
	if person.Name != "Ana Souza" || person.ProfileID != "p-1" {
		t.Errorf("unexpected person: %+v", person)
	}

	// Same profile again with a new headline refreshes the record instead
	// of duplicating it.
	lead.CommenterHeadline = "VP de Marketing"
	refreshed, err := crm.UpsertPerson("owner-1", lead)
	if err != nil {
		t.Fatalf("second UpsertPerson returned error: %v", err)
	}
	if refreshed.ID != person.ID {
		t.Errorf("person duplicated: ids %d and %d", person.ID, refreshed.ID)
	}
	if refreshed.Headline != "VP de Marketing" {
		t.Errorf("Headline = %q, want the refreshed value", refreshed.Headline)
	}

	var count int64
	db.Model(&models.Person{}).Count(&count)
	if count != 1 {
		t.Errorf("people = %d, want 1", count)
	}

	// The same profile under another owner is a separate record.
	if _, err := crm.UpsertPerson("owner-2", lead); err != nil {
		t.Fatalf("UpsertPerson for other owner returned error: %v", err)
	}
	db.Model(&models.Person{}).Count(&count)
	if count != 2 {
		t.Errorf("people = %d, want per-owner isolation", count)
	}
}

func TestCRMSyncLead(t *testing.T) {
	db := newTestDB(t)
	crm := NewCRMService(db, testLogger())
	campaign := seedCampaign(t, db, nil)
	lead := seedLead(t, db, campaign, nil)

	crm.SyncLead(lead, models.InteractionKindCaptured, "comentou no post")
	crm.SyncLead(lead, models.InteractionKindDM, "DM enviado")

	var person models.Person
	if err := db.Where("profile_id = ?", "p-1").First(&person).Error; err != nil {
		t.Fatalf("person not created: %v", err)
	}

	var interactions []models.Interaction
	if err := db.Where("person_id = ?", person.ID).Order("id").Find(&interactions).Error; err != nil {
		t.Fatal(err)
	}
	if len(interactions) != 2 {
		t.Fatalf("interactions = %d, want 2", len(interactions))
	}
	if interactions[0].Kind != models.InteractionKindCaptured || interactions[1].Kind != models.InteractionKindDM {
		t.Errorf("unexpected interaction kinds: %+v", interactions)
	}
}
