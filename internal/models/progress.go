package models

type Step string

const (
	StepLogin                Step = "login"
	StepReminder             Step = "reminder"
	StepSectionAnnouncement  Step = "section_announcement"
	StepQuiz                 Step = "quiz"
	StepFinished             Step = "finished"
	StepCompleted            Step = "completed"
	StepTestAlreadyCompleted Step = "test_already_completed"
	StepError                Step = "error"
)

// Terminal reports whether no transition leaves this step.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepTestAlreadyCompleted
}

// SessionProgress is the engine's cursor: which test and section the
// candidate is on, how many seconds remain on the active timer, and the
// current step. Created on successful identity verification, mutated by
// every transition, discarded on submission or abandonment.
type SessionProgress struct {
	TestIndex        int  `json:"test_index"`
	SectionIndex     int  `json:"section_index"`
	RemainingSeconds int  `json:"remaining_seconds"`
	Step             Step `json:"step"`
}
