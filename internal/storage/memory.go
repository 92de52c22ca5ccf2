package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process fake Store used by tests, avoiding a real
// database dependency while exercising the same interface as
// PostgresStore.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
	leads map[string]Lead
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls: make(map[string]Call),
		leads: make(map[string]Lead),
	}
}

func (m *MemoryStore) PutLead(l Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.ID] = l
}

func (m *MemoryStore) GetCall(ctx context.Context, callID string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return Call{}, fmt.Errorf("get call %s: not found", callID)
	}
	return c, nil
}

func (m *MemoryStore) GetLead(ctx context.Context, leadID string) (Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return Lead{}, fmt.Errorf("get lead %s: not found", leadID)
	}
	return l, nil
}

func (m *MemoryStore) CreateCall(ctx context.Context, call Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.calls[call.ID]; exists {
		return nil
	}
	m.calls[call.ID] = call
	return nil
}

func (m *MemoryStore) UpdateCallStatus(ctx context.Context, callID string, status CallStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return fmt.Errorf("update call status %s: not found", callID)
	}
	c.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		c.EndedAt = &now
	}
	m.calls[callID] = c
	return nil
}

func (m *MemoryStore) AppendTranscript(ctx context.Context, callID, role, text, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return fmt.Errorf("append transcript %s: not found", callID)
	}
	c.FullTranscript += formatTranscriptLine(role, text)
	m.calls[callID] = c
	return nil
}

func (m *MemoryStore) SaveConversationState(ctx context.Context, callID string, snap ConversationSnapshot) error {
	m.mu.Lock()
	c, ok := m.calls[callID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("save conversation state %s: not found", callID)
	}
	c.StateID = snap.StateID
	c.ChannelTone = snap.ChannelTone
	c.BANTBudget = snap.BANTBudget
	c.BANTAuthority = snap.BANTAuthority
	c.BANTNeed = snap.BANTNeed
	c.BANTTimeline = snap.BANTTimeline
	c.ObjectionCount = snap.ObjectionCount
	c.TechIssueCount = snap.TechIssueCount
	c.LastPresentationStateID = snap.LastPresentationStateID
	c.DetectedIntents = snap.DetectedIntents
	m.calls[callID] = c
	m.mu.Unlock()
	if snap.EndCall {
		return m.UpdateCallStatus(ctx, callID, StatusCompleted)
	}
	return nil
}

func (m *MemoryStore) Close() {}
