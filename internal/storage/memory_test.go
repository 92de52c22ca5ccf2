package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreCallLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutLead(Lead{ID: "lead-1", Name: "Maya"})

	call := Call{ID: "call-1", LeadID: "lead-1", Status: StatusQueued, StartedAt: time.Now()}
	if err := s.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if err := s.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall idempotent re-create: %v", err)
	}

	if err := s.AppendTranscript(ctx, "call-1", "user", "hello", ""); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}
	got, err := s.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.FullTranscript == "" {
		t.Fatalf("FullTranscript empty after append")
	}

	if err := s.UpdateCallStatus(ctx, "call-1", StatusCompleted); err != nil {
		t.Fatalf("UpdateCallStatus: %v", err)
	}
	got, _ = s.GetCall(ctx, "call-1")
	if got.EndedAt == nil {
		t.Fatalf("EndedAt nil after terminal status update")
	}
}

func TestMemoryStoreSaveConversationStatePersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutLead(Lead{ID: "lead-1", Name: "Maya"})
	if err := s.CreateCall(ctx, Call{ID: "call-1", LeadID: "lead-1", Status: StatusQueued, StartedAt: time.Now(), LastPresentationStateID: -1}); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	snap := ConversationSnapshot{
		StateID:                 6,
		ChannelTone:             "cold_call",
		BANTBudget:              80,
		ObjectionCount:          1,
		TechIssueCount:          0,
		LastPresentationStateID: 6,
		DetectedIntents:         "confirm_yes,resonance",
	}
	if err := s.SaveConversationState(ctx, "call-1", snap); err != nil {
		t.Fatalf("SaveConversationState: %v", err)
	}

	got, err := s.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.StateID != 6 || got.BANTBudget != 80 || got.ObjectionCount != 1 || got.DetectedIntents != "confirm_yes,resonance" {
		t.Fatalf("GetCall after SaveConversationState = %+v, want snapshot applied", got)
	}
}

func TestIsStatusRegression(t *testing.T) {
	if !IsStatusRegression(StatusInProgress, StatusQueued) {
		t.Fatalf("queued after in_progress should be a regression")
	}
	if IsStatusRegression(StatusQueued, StatusInProgress) {
		t.Fatalf("in_progress after queued should not be a regression")
	}
	if IsStatusRegression(StatusCompleted, StatusCompleted) {
		t.Fatalf("same status reapplied should not be a regression")
	}
}
