package models

type AnswerKind string

const (
	AnswerRankedPair   AnswerKind = "ranked_pair"
	AnswerSingleChoice AnswerKind = "single_choice"
)

// RankedPairAnswer holds the forced-choice pair for one question: one
// option picked as "most like me" and a different one as "least like me".
type RankedPairAnswer struct {
	Most  string `json:"most"`
	Least string `json:"least"`
}

func (a RankedPairAnswer) Complete() bool {
	return a.Most != "" && a.Least != ""
}

// Apply folds an incoming selection into the stored answer. A completed
// pair is immutable. A slot update that would make both slots reference
// the same option is ignored, leaving the previous value in place.
func (a RankedPairAnswer) Apply(in RankedPairAnswer) RankedPairAnswer {
	if a.Complete() {
		return a
	}
	out := a
	if in.Most != "" && in.Most != out.Least {
		out.Most = in.Most
	}
	if in.Least != "" && in.Least != out.Most {
		out.Least = in.Least
	}
	return out
}

// SingleChoiceAnswer holds the selected option for single-choice sections,
// scored and continuous-scroll alike.
type SingleChoiceAnswer struct {
	Selected string `json:"selected"`
}

// Answer is the tagged union stored per question. Exactly one variant
// field matching Kind is set; a variant never carries fields that are
// meaningless for its section type.
type Answer struct {
	Kind         AnswerKind          `json:"kind"`
	RankedPair   *RankedPairAnswer   `json:"ranked_pair,omitempty"`
	SingleChoice *SingleChoiceAnswer `json:"single_choice,omitempty"`
}

func NewRankedPairAnswer(most, least string) Answer {
	return Answer{Kind: AnswerRankedPair, RankedPair: &RankedPairAnswer{Most: most, Least: least}}
}

func NewSingleChoiceAnswer(selected string) Answer {
	return Answer{Kind: AnswerSingleChoice, SingleChoice: &SingleChoiceAnswer{Selected: selected}}
}

// Complete reports whether the answer satisfies its variant's completion
// rule: both ranked slots chosen, or a single choice selected.
func (a Answer) Complete() bool {
	switch a.Kind {
	case AnswerRankedPair:
		return a.RankedPair != nil && a.RankedPair.Complete()
	case AnswerSingleChoice:
		return a.SingleChoice != nil && a.SingleChoice.Selected != ""
	}
	return false
}

// Merge applies an incoming answer on top of a stored one. Ranked pairs
// merge slot by slot under their invariants; single choices overwrite.
// An incoming answer of a different kind replaces the stored one.
func (a Answer) Merge(in Answer) Answer {
	if a.Kind != in.Kind {
		return in
	}
	switch in.Kind {
	case AnswerRankedPair:
		prev := RankedPairAnswer{}
		if a.RankedPair != nil {
			prev = *a.RankedPair
		}
		next := RankedPairAnswer{}
		if in.RankedPair != nil {
			next = *in.RankedPair
		}
		merged := prev.Apply(next)
		return Answer{Kind: AnswerRankedPair, RankedPair: &merged}
	default:
		return in
	}
}

// WireAnswer is the submission-ready encoding of one answer, shaped per
// section type. Ranked-pair answers populate the most/least fields,
// single-choice answers populate the selected field.
type WireAnswer struct {
	SectionID        string `json:"section_id"`
	QuestionID       string `json:"question_id"`
	MostOptionID     string `json:"most_option_id,omitempty"`
	LeastOptionID    string `json:"least_option_id,omitempty"`
	SelectedOptionID string `json:"selected_option_id,omitempty"`
}
