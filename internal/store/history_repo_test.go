package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/fieldcrm/callgate/internal/models"
)

func testInteraction(id, leadID string) models.Interaction {
	return models.Interaction{
		ID:              id,
		LeadID:          leadID,
		LeadName:        "Asha Patel",
		Type:            models.InteractionCall,
		DurationSeconds: 42,
		Status:          "Connected | OUTGOING",
		Remarks:         "Asked for a callback next week",
		Timestamp:       time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Date:            "2025-03-10T12:00:00Z",
	}
}

func TestAddInteractionAppendsBothLists(t *testing.T) {
	repo := NewHistoryRepo(NewInMemoryStore())

	if err := repo.AddInteraction(testInteraction("i1", "lead-1")); err != nil {
		t.Fatalf("AddInteraction failed: %v", err)
	}
	if err := repo.AddInteraction(testInteraction("i2", "lead-2")); err != nil {
		t.Fatalf("AddInteraction failed: %v", err)
	}

	global := repo.GlobalHistory()
	if len(global) != 2 {
		t.Fatalf("expected 2 global entries, got %d", len(global))
	}
	// Most recent first.
	if global[0].ID != "i2" || global[1].ID != "i1" {
		t.Errorf("global order wrong: %s, %s", global[0].ID, global[1].ID)
	}

	lead1 := repo.LeadHistory("lead-1")
	if len(lead1) != 1 || lead1[0].ID != "i1" {
		t.Errorf("lead-1 history wrong: %+v", lead1)
	}
	lead2 := repo.LeadHistory("lead-2")
	if len(lead2) != 1 || lead2[0].ID != "i2" {
		t.Errorf("lead-2 history wrong: %+v", lead2)
	}
}

func TestGlobalHistoryCapped(t *testing.T) {
	repo := NewHistoryRepo(NewInMemoryStore())

	for i := 0; i < MaxGlobalHistory+10; i++ {
		in := testInteraction(fmt.Sprintf("i%d", i), "lead-1")
		if err := repo.AddInteraction(in); err != nil {
			t.Fatalf("AddInteraction %d failed: %v", i, err)
		}
	}

	global := repo.GlobalHistory()
	if len(global) != MaxGlobalHistory {
		t.Errorf("expected global list capped at %d, got %d", MaxGlobalHistory, len(global))
	}
	// Newest entry must survive the cap.
	if global[0].ID != fmt.Sprintf("i%d", MaxGlobalHistory+9) {
		t.Errorf("expected newest entry first, got %s", global[0].ID)
	}

	// The per-lead list is uncapped.
	lead := repo.LeadHistory("lead-1")
	if len(lead) != MaxGlobalHistory+10 {
		t.Errorf("expected %d lead entries, got %d", MaxGlobalHistory+10, len(lead))
	}
}

func TestHistoryFailsOpen(t *testing.T) {
	repo := NewHistoryRepo(failingKV{})
	if got := repo.GlobalHistory(); got != nil {
		t.Errorf("expected empty history on backend error, got %v", got)
	}
	if got := repo.LeadHistory("lead-1"); got != nil {
		t.Errorf("expected empty lead history on backend error, got %v", got)
	}
}

func TestHistoryCorruptList(t *testing.T) {
	kv := NewInMemoryStore()
	if err := kv.Set(keyGlobalHistory, "[broken"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	repo := NewHistoryRepo(kv)
	if got := repo.GlobalHistory(); got != nil {
		t.Errorf("expected empty history for corrupt list, got %v", got)
	}

	// A corrupt list is replaced on the next write.
	if err := repo.AddInteraction(testInteraction("i1", "lead-1")); err != nil {
		t.Fatalf("AddInteraction over corrupt list failed: %v", err)
	}
	if got := repo.GlobalHistory(); len(got) != 1 {
		t.Errorf("expected 1 entry after rewrite, got %d", len(got))
	}
}
