package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/carelinq/eligibility-agent/internal/models"
)

func TestInMemoryStoreSaveAndGet(t *testing.T) {
	s := NewInMemoryStore()

	state := models.NewConversationState("conv-1")
	state.SetField(models.FieldMemberID, "MB123456")
	state.Intent = models.IntentGeneralCoverage
	if err := s.SaveConversation(*state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.GetConversation("conv-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation, got nil")
	}
	if got.CollectedFields[models.FieldMemberID] != "MB123456" {
		t.Errorf("expected member_id to round-trip, got %+v", got.CollectedFields)
	}
	if got.Intent != models.IntentGeneralCoverage {
		t.Errorf("expected intent to round-trip, got %s", got.Intent)
	}
}

func TestInMemoryStoreGetMissingReturnsNil(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.GetConversation("nope")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing conversation, got %+v", got)
	}
}

func TestInMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	state := models.NewConversationState("conv-1")
	if err := s.SaveConversation(*state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	first, _ := s.GetConversation("conv-1")
	first.SetField(models.FieldMemberID, "MUTATED")

	second, _ := s.GetConversation("conv-1")
	if _, ok := second.CollectedFields[models.FieldMemberID]; ok {
		t.Error("mutating a returned copy should not affect the stored state")
	}
}

func TestInMemoryStoreDelete(t *testing.T) {
	s := NewInMemoryStore()
	state := models.NewConversationState("conv-1")
	if err := s.SaveConversation(*state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.DeleteConversation("conv-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, _ := s.GetConversation("conv-1")
	if got != nil {
		t.Error("expected conversation to be deleted")
	}
	// Deleting a missing conversation is not an error.
	if err := s.DeleteConversation("conv-1"); err != nil {
		t.Errorf("double delete should not error: %v", err)
	}
}

func TestInMemoryStoreDeleteIdleSince(t *testing.T) {
	s := NewInMemoryStore()

	old := models.NewConversationState("old")
	old.UpdatedAt = time.Now().Add(-time.Hour)
	fresh := models.NewConversationState("fresh")

	if err := s.SaveConversation(*old); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveConversation(*fresh); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	evicted, err := s.DeleteIdleSince(time.Now().Add(-30 * time.Minute))
	if err != nil {
		t.Fatalf("eviction failed: %v", err)
	}
	if evicted != 1 {
		t.Errorf("expected 1 evicted conversation, got %d", evicted)
	}
	if got, _ := s.GetConversation("old"); got != nil {
		t.Error("expected idle conversation to be evicted")
	}
	if got, _ := s.GetConversation("fresh"); got == nil {
		t.Error("expected fresh conversation to survive eviction")
	}
}

func TestInMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", n)
			state := models.NewConversationState(id)
			for j := 0; j < 50; j++ {
				state.AddTurn("user", "hello")
				if err := s.SaveConversation(*state); err != nil {
					t.Errorf("save failed: %v", err)
					return
				}
				if _, err := s.GetConversation(id); err != nil {
					t.Errorf("get failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dsn := t.TempDir() + "/conversations.db"
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	defer s.Close()

	state := models.NewConversationState("conv-sql")
	state.SetField(models.FieldMemberID, "MB789012")
	state.SetField(models.FieldDateOfBirth, "1990-07-22")
	state.Intent = models.IntentProcedureCheck
	state.Stage = models.StageGenerateFinalResponse
	state.EligibilityDetermined = true
	state.LastAPIResult = &models.EligibilityResult{Outcome: models.OutcomeEligible}
	state.AddTurn("user", "can I get an MRI?")

	if err := s.SaveConversation(*state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.GetConversation("conv-sql")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation, got nil")
	}
	if got.Intent != models.IntentProcedureCheck || !got.EligibilityDetermined {
		t.Errorf("state did not round-trip: %+v", got)
	}
	if got.LastAPIResult == nil || got.LastAPIResult.Outcome != models.OutcomeEligible {
		t.Errorf("last API result did not round-trip: %+v", got.LastAPIResult)
	}
	if len(got.TurnHistory) != 1 {
		t.Errorf("expected 1 turn in history, got %d", len(got.TurnHistory))
	}

	// Update in place.
	got.SetField(models.FieldProcedureCode, "70553")
	got.UpdatedAt = time.Now()
	if err := s.SaveConversation(*got); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	updated, _ := s.GetConversation("conv-sql")
	if updated.CollectedFields[models.FieldProcedureCode] != "70553" {
		t.Errorf("update did not persist: %+v", updated.CollectedFields)
	}
}

func TestSQLiteStoreDeleteIdleSince(t *testing.T) {
	dsn := t.TempDir() + "/conversations.db"
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	defer s.Close()

	old := models.NewConversationState("old")
	old.UpdatedAt = time.Now().Add(-2 * time.Hour)
	if err := s.SaveConversation(*old); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	evicted, err := s.DeleteIdleSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("eviction failed: %v", err)
	}
	if evicted != 1 {
		t.Errorf("expected 1 evicted conversation, got %d", evicted)
	}
}

func TestJanitorSweep(t *testing.T) {
	s := NewInMemoryStore()

	old := models.NewConversationState("stale")
	old.UpdatedAt = time.Now().Add(-time.Hour)
	fresh := models.NewConversationState("active")
	if err := s.SaveConversation(*old); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveConversation(*fresh); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	j := NewJanitor(s, 30*time.Minute)
	if evicted := j.Sweep(); evicted != 1 {
		t.Errorf("expected 1 evicted conversation, got %d", evicted)
	}
	if got, _ := s.GetConversation("stale"); got != nil {
		t.Error("expected stale conversation to be evicted")
	}
	if got, _ := s.GetConversation("active"); got == nil {
		t.Error("expected active conversation to survive the sweep")
	}
}

func TestJanitorDefaultsTTL(t *testing.T) {
	j := NewJanitor(NewInMemoryStore(), 0)
	if j.ttl != DefaultConversationTTL {
		t.Errorf("expected default TTL %v, got %v", DefaultConversationTTL, j.ttl)
	}
}
