package store

import (
	"context"
	"errors"
	"time"

	"github.com/TalentGate/candidate-session-service/internal/models"
)

var ErrFlagsNotSupported = errors.New("section type does not support review flags")

// ScopeRecord is the durable payload of one section scope: in-progress
// answers keyed by question id, flagged question ids, and the wall-clock
// time the section was first entered.
type ScopeRecord struct {
	Answers   map[string]models.Answer `json:"answers"`
	Flagged   []string                 `json:"flagged"`
	StartedAt *time.Time               `json:"started_at,omitempty"`
}

func newScopeRecord() *ScopeRecord {
	return &ScopeRecord{Answers: make(map[string]models.Answer)}
}

// IsFlagged reports whether the question is marked for review.
func (r *ScopeRecord) IsFlagged(questionID string) bool {
	for _, id := range r.Flagged {
		if id == questionID {
			return true
		}
	}
	return false
}

// AnswerStore is the single source of truth for what has been answered so
// far within a section, including across a client reload. Every write goes
// through the backing KV synchronously, so a read in the same or a later
// event always observes it.
type AnswerStore struct {
	kv KV
}

func NewAnswerStore(kv KV) *AnswerStore {
	return &AnswerStore{kv: kv}
}

// RecordAnswer upserts the answer for a question within the scope, merging
// under the variant's invariants, and returns the stored result.
func (s *AnswerStore) RecordAnswer(ctx context.Context, scope Scope, questionID string, in models.Answer) (models.Answer, error) {
	record, err := s.load(ctx, scope)
	if err != nil {
		return models.Answer{}, err
	}

	stored := in
	if prev, ok := record.Answers[questionID]; ok {
		stored = prev.Merge(in)
	}
	record.Answers[questionID] = stored

	if err := s.kv.Set(ctx, scope.Key(), record); err != nil {
		return models.Answer{}, err
	}
	return stored, nil
}

// ToggleFlag flips the review marker for a question and returns the new
// flagged state. Section types without flag support are rejected with
// ErrFlagsNotSupported and the record is left untouched.
func (s *AnswerStore) ToggleFlag(ctx context.Context, scope Scope, sectionType models.SectionType, questionID string) (bool, error) {
	if !sectionType.AllowsFlags() {
		return false, ErrFlagsNotSupported
	}

	record, err := s.load(ctx, scope)
	if err != nil {
		return false, err
	}

	flagged := true
	next := record.Flagged[:0]
	for _, id := range record.Flagged {
		if id == questionID {
			flagged = false
			continue
		}
		next = append(next, id)
	}
	if flagged {
		next = append(next, questionID)
	}
	record.Flagged = next

	if err := s.kv.Set(ctx, scope.Key(), record); err != nil {
		return false, err
	}
	return flagged, nil
}

// LoadScope returns the persisted record for the scope, or an empty record
// when nothing has been captured yet.
func (s *AnswerStore) LoadScope(ctx context.Context, scope Scope) (*ScopeRecord, error) {
	return s.load(ctx, scope)
}

// MarkStarted persists the section-start timestamp if one is not already
// recorded, so elapsed time can be reconciled after a reload.
func (s *AnswerStore) MarkStarted(ctx context.Context, scope Scope, at time.Time) error {
	record, err := s.load(ctx, scope)
	if err != nil {
		return err
	}
	if record.StartedAt != nil {
		return nil
	}
	record.StartedAt = &at
	return s.kv.Set(ctx, scope.Key(), record)
}

// ClearScope drops the record once the section's answers have been folded
// into the cumulative submission batch.
func (s *AnswerStore) ClearScope(ctx context.Context, scope Scope) error {
	return s.kv.Delete(ctx, scope.Key())
}

func (s *AnswerStore) load(ctx context.Context, scope Scope) (*ScopeRecord, error) {
	record := newScopeRecord()
	found, err := s.kv.Get(ctx, scope.Key(), record)
	if err != nil {
		return nil, err
	}
	if !found || record.Answers == nil {
		record.Answers = make(map[string]models.Answer)
	}
	return record, nil
}
