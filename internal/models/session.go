package models

type SectionType string

const (
	SectionRankedPair         SectionType = "ranked_pair"
	SectionSingleChoiceScored SectionType = "single_choice_scored"
	SectionContinuousScroll   SectionType = "continuous_scroll"
)

// AllowsFlags reports whether questions in this section type can be marked
// for review. Continuous-scroll sections render every question at once, so
// review flags do not apply to them.
func (t SectionType) AllowsFlags() bool {
	return t != SectionContinuousScroll
}

// AnswerKindFor returns the answer variant this section type captures.
func (t SectionType) AnswerKindFor() AnswerKind {
	if t == SectionRankedPair {
		return AnswerRankedPair
	}
	return AnswerSingleChoice
}

// Option is one selectable choice of a question. The dimension tags are
// populated only for ranked-pair sections.
type Option struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	MostDimension  string `json:"most_dimension,omitempty"`
	LeastDimension string `json:"least_dimension,omitempty"`
}

// Question is a session-scoped question instance. Its ID is the instance
// id handed out by the gateway, not the question-bank id, and it is the
// only valid correlation key for answers.
type Question struct {
	ID      string   `json:"id" validate:"required"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// HasOption reports whether id references one of the question's options.
func (q *Question) HasOption(id string) bool {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return true
		}
	}
	return false
}

type Section struct {
	ID            string      `json:"id" validate:"required"`
	Name          string      `json:"name"`
	Type          SectionType `json:"type" validate:"required,section_type"`
	Duration      int         `json:"duration"` // seconds
	QuestionCount int         `json:"question_count"`
	Questions     []Question  `json:"questions" validate:"dive"`

	// Legacy marks the implicit section synthesized for tests that carry
	// their questions directly instead of in sections. The engine skips
	// the announcement step for legacy sections.
	Legacy bool `json:"-"`
}

// TestInfo is one ordered test within a session. Legacy tests have no
// sections and carry their questions directly.
type TestInfo struct {
	ID            string     `json:"id" validate:"required"`
	Name          string     `json:"name"`
	QuestionCount int        `json:"question_count"`
	Duration      int        `json:"duration"` // seconds
	Type          string     `json:"type,omitempty"`
	Sections      []Section  `json:"sections" validate:"dive"`
	Questions     []Question `json:"questions,omitempty" validate:"dive"`
}

// NormalizedSections returns the test's sections, wrapping a legacy
// zero-section test into a single implicit section that inherits the
// test's id, duration and question list.
func (t *TestInfo) NormalizedSections() []Section {
	if len(t.Sections) > 0 {
		return t.Sections
	}
	sectionType := SectionType(t.Type)
	switch sectionType {
	case SectionRankedPair, SectionSingleChoiceScored, SectionContinuousScroll:
	default:
		sectionType = SectionSingleChoiceScored
	}
	return []Section{{
		ID:            t.ID,
		Name:          t.Name,
		Type:          sectionType,
		Duration:      t.Duration,
		QuestionCount: t.QuestionCount,
		Questions:     t.Questions,
		Legacy:        true,
	}}
}

// SessionData is everything the gateway resolves for one session token.
type SessionData struct {
	Candidate Candidate  `json:"candidate"`
	Tests     []TestInfo `json:"tests" validate:"min=1,dive"`
}
