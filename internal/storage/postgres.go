package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence contract TurnHandler and the httpapi operator
// endpoints depend on; a fake in-memory implementation satisfies this for
// tests without a database.
type Store interface {
	GetCall(ctx context.Context, callID string) (Call, error)
	GetLead(ctx context.Context, leadID string) (Lead, error)
	CreateCall(ctx context.Context, call Call) error
	UpdateCallStatus(ctx context.Context, callID string, status CallStatus) error
	AppendTranscript(ctx context.Context, callID, role, text, source string) error
	SaveConversationState(ctx context.Context, callID string, snap ConversationSnapshot) error
	Close()
}

// PostgresStore is the production Store, backed by a pooled pgx connection.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and idempotently creates schema, grounded on
// the teacher's memory.NewPostgresStore/initSchema shape.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			industry TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			extra_notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL REFERENCES leads(id),
			carrier_session_id TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'queued',
			state_id INTEGER NOT NULL DEFAULT 0,
			channel_tone TEXT NOT NULL DEFAULT '',
			bant_budget DOUBLE PRECISION NOT NULL DEFAULT 0,
			bant_authority DOUBLE PRECISION NOT NULL DEFAULT 0,
			bant_need DOUBLE PRECISION NOT NULL DEFAULT 0,
			bant_timeline DOUBLE PRECISION NOT NULL DEFAULT 0,
			objection_count INTEGER NOT NULL DEFAULT 0,
			tech_issue_count INTEGER NOT NULL DEFAULT 0,
			last_presentation_state_id INTEGER NOT NULL DEFAULT -1,
			detected_intents TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ,
			full_transcript TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			sentiment TEXT NOT NULL DEFAULT '',
			interest_level TEXT NOT NULL DEFAULT '',
			recording_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			call_id TEXT NOT NULL REFERENCES calls(id),
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_call_id ON transcripts(call_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, callID string) (Call, error) {
	var c Call
	var endedAt *time.Time
	row := s.pool.QueryRow(ctx, `SELECT id, lead_id, carrier_session_id, phone_number, status, state_id,
		channel_tone, bant_budget, bant_authority, bant_need, bant_timeline, objection_count,
		tech_issue_count, last_presentation_state_id, detected_intents,
		started_at, ended_at, full_transcript, summary, sentiment, interest_level, recording_url
		FROM calls WHERE id = $1`, callID)
	err := row.Scan(&c.ID, &c.LeadID, &c.CarrierSessionID, &c.PhoneNumber, &c.Status, &c.StateID,
		&c.ChannelTone, &c.BANTBudget, &c.BANTAuthority, &c.BANTNeed, &c.BANTTimeline, &c.ObjectionCount,
		&c.TechIssueCount, &c.LastPresentationStateID, &c.DetectedIntents,
		&c.StartedAt, &endedAt, &c.FullTranscript, &c.Summary, &c.Sentiment, &c.InterestLevel, &c.RecordingURL)
	if err != nil {
		return Call{}, fmt.Errorf("get call %s: %w", callID, err)
	}
	c.EndedAt = endedAt
	return c, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (Lead, error) {
	var l Lead
	row := s.pool.QueryRow(ctx, `SELECT id, name, company, title, industry, phone, extra_notes
		FROM leads WHERE id = $1`, leadID)
	if err := row.Scan(&l.ID, &l.Name, &l.Company, &l.Title, &l.Industry, &l.Phone, &l.ExtraNotes); err != nil {
		return Lead{}, fmt.Errorf("get lead %s: %w", leadID, err)
	}
	return l, nil
}

// CreateCall inserts call as-is; callers seed LastPresentationStateID to -1
// (the "no presentation state entered yet" sentinel) before calling this.
func (s *PostgresStore) CreateCall(ctx context.Context, call Call) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO calls
		(id, lead_id, carrier_session_id, phone_number, status, state_id, channel_tone,
		 last_presentation_state_id, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		call.ID, call.LeadID, call.CarrierSessionID, call.PhoneNumber, call.Status, call.StateID,
		call.ChannelTone, call.LastPresentationStateID, call.StartedAt)
	if err != nil {
		return fmt.Errorf("create call %s: %w", call.ID, err)
	}
	return nil
}

// UpdateCallStatus sets status unconditionally. Callers that must satisfy
// the idempotent-webhook property (spec §8: redelivery of the same
// lifecycle event must not regress the call) use IsStatusRegression first.
func (s *PostgresStore) UpdateCallStatus(ctx context.Context, callID string, status CallStatus) error {
	var endedAt *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		endedAt = &now
	}
	_, err := s.pool.Exec(ctx, `UPDATE calls SET status = $1, ended_at = COALESCE($2, ended_at) WHERE id = $3`,
		status, endedAt, callID)
	if err != nil {
		return fmt.Errorf("update call status %s: %w", callID, err)
	}
	return nil
}

// IsStatusRegression reports whether applying next to a call currently at
// current would move its lifecycle status backwards.
func IsStatusRegression(current, next CallStatus) bool {
	return statusRank[next] < statusRank[current]
}

func (s *PostgresStore) AppendTranscript(ctx context.Context, callID, role, text, source string) error {
	batch := s.pool
	_, err := batch.Exec(ctx, `UPDATE calls SET full_transcript = full_transcript || $1 WHERE id = $2`,
		formatTranscriptLine(role, text), callID)
	if err != nil {
		return fmt.Errorf("append transcript %s: %w", callID, err)
	}
	_, err = batch.Exec(ctx, `INSERT INTO transcripts (call_id, role, text, source) VALUES ($1, $2, $3, $4)`,
		callID, role, text, source)
	if err != nil {
		return fmt.Errorf("insert transcript row %s: %w", callID, err)
	}
	return nil
}

// SaveConversationState writes the full per-turn conversation-state snapshot
// (spec §4.12: the Call row, not an in-memory registry, is the durable home
// for ConversationState between turns).
func (s *PostgresStore) SaveConversationState(ctx context.Context, callID string, snap ConversationSnapshot) error {
	_, err := s.pool.Exec(ctx, `UPDATE calls SET
		state_id = $1, channel_tone = $2, bant_budget = $3, bant_authority = $4,
		bant_need = $5, bant_timeline = $6, objection_count = $7, tech_issue_count = $8,
		last_presentation_state_id = $9, detected_intents = $10
		WHERE id = $11`,
		snap.StateID, snap.ChannelTone, snap.BANTBudget, snap.BANTAuthority,
		snap.BANTNeed, snap.BANTTimeline, snap.ObjectionCount, snap.TechIssueCount,
		snap.LastPresentationStateID, snap.DetectedIntents, callID)
	if err != nil {
		return fmt.Errorf("save conversation state %s: %w", callID, err)
	}
	if snap.EndCall {
		return s.UpdateCallStatus(ctx, callID, StatusCompleted)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func formatTranscriptLine(role, text string) string {
	return "\n[" + role + "] " + text
}
