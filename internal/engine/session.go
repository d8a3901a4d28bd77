package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/TalentGate/candidate-session-service/internal/events"
	"github.com/TalentGate/candidate-session-service/internal/gateway"
	"github.com/TalentGate/candidate-session-service/internal/models"
	"github.com/TalentGate/candidate-session-service/internal/store"
	"github.com/TalentGate/candidate-session-service/internal/submission"
	"github.com/TalentGate/candidate-session-service/internal/timer"
	"github.com/TalentGate/candidate-session-service/internal/utils"
	"github.com/TalentGate/candidate-session-service/internal/validator"
)

// Dependencies are the collaborators a session needs.
type Dependencies struct {
	Store             *store.AnswerStore
	Gateway           gateway.Gateway
	Events            events.EventPublisher
	Logger            utils.Logger
	Validator         *validator.Validator
	AnnouncementDelay time.Duration
}

// Session walks one candidate through identity verification, the ordered
// tests and sections of their package, per-section countdowns, answer
// capture, and the single final submission. All state access is serialized
// through one mutex; the countdown's expiry callback and user-initiated
// finish both funnel into the same guarded transition so it runs at most
// once per section.
type Session struct {
	mu    sync.Mutex
	token string
	deps  Dependencies

	candidate models.Candidate
	tests     []models.TestInfo
	sections  [][]models.Section

	step        models.Step
	message     string
	completedAt *time.Time

	testIdx    int
	sectionIdx int

	batch   []models.WireAnswer
	dropped int

	// finishing guards the Quiz -> Finished transition of the current
	// section against the expiry/user race. quizGen identifies the quiz
	// run the active countdown belongs to, so an expiry that was already
	// in flight when its section finished cannot touch the next one.
	finishing bool
	quizGen   int

	countdown      *timer.Countdown
	cancelAnnounce func()
}

// SessionState is a consumer-facing snapshot of the session.
type SessionState struct {
	Step        models.Step              `json:"step"`
	Message     string                   `json:"message,omitempty"`
	Progress    models.SessionProgress   `json:"progress"`
	Candidate   *models.Candidate        `json:"candidate,omitempty"`
	Test        *models.TestInfo         `json:"test,omitempty"`
	Section     *models.Section          `json:"section,omitempty"`
	Answers     map[string]models.Answer `json:"answers,omitempty"`
	Flagged     []string                 `json:"flagged,omitempty"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

func NewSession(token string, deps Dependencies) *Session {
	s := &Session{
		token: token,
		deps:  deps,
		step:  models.StepLogin,
	}
	s.countdown = timer.NewCountdown()
	return s
}

// Start resolves the session from the gateway. A token whose test is
// already submitted lands directly in the TestAlreadyCompleted step and
// never enters the quiz flow; resolution failures land in Error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.deps.Gateway.FetchSession(ctx, s.token)
	if err != nil {
		if already, ok := gateway.AsAlreadySubmitted(err); ok {
			s.step = models.StepTestAlreadyCompleted
			s.completedAt = &already.CompletedAt
			s.publish(ctx, events.EventSessionAlreadySubmitted, map[string]interface{}{
				"completed_at": already.CompletedAt,
			})
			return nil
		}
		s.step = models.StepError
		s.message = "session could not be resolved"
		s.deps.Logger.LogError(err, "Session resolution failed", "token", s.token)
		return err
	}

	if s.deps.Validator != nil {
		if err := s.deps.Validator.Validate(data); err != nil {
			s.step = models.StepError
			s.message = "session data failed validation"
			s.deps.Logger.LogError(err, "Gateway returned invalid session data", "token", s.token)
			return err
		}
	}

	s.candidate = data.Candidate
	s.tests = data.Tests
	s.sections = make([][]models.Section, len(data.Tests))
	for i := range data.Tests {
		s.sections[i] = data.Tests[i].NormalizedSections()
	}
	s.step = models.StepLogin
	return nil
}

// Verify checks the typed identity number against the candidate record.
// A mismatch leaves the session in Login; there is no retry limit.
func (s *Session) Verify(identityNumber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != models.StepLogin || s.tests == nil {
		return false
	}
	if strings.TrimSpace(identityNumber) != s.candidate.IdentityNumber {
		return false
	}
	s.step = models.StepReminder
	s.publish(context.Background(), events.EventSessionVerified, nil)
	return true
}

// StartTest leaves the reminder screen and enters the first section of the
// current test: its announcement, or the quiz directly for legacy tests.
func (s *Session) StartTest(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != models.StepReminder {
		return ErrInvalidTransition
	}
	return s.enterSectionLocked(ctx)
}

// StartSection proceeds from the announcement into the quiz before the
// announcement delay elapses on its own.
func (s *Session) StartSection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != models.StepSectionAnnouncement {
		return ErrInvalidTransition
	}
	s.stopAnnounceLocked()
	return s.enterQuizLocked(ctx)
}

// RecordAnswer captures an answer for a question of the active section.
// The write hits the store synchronously, so a later read is guaranteed to
// observe it.
func (s *Session) RecordAnswer(ctx context.Context, questionID string, in models.Answer) (models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != models.StepQuiz {
		return models.Answer{}, ErrInvalidTransition
	}
	section := s.currentSectionLocked()
	question := findQuestion(section, questionID)
	if question == nil {
		return models.Answer{}, ErrQuestionNotFound
	}
	if in.Kind != section.Type.AnswerKindFor() {
		return models.Answer{}, ErrAnswerKindMismatch
	}
	return s.deps.Store.RecordAnswer(ctx, s.scopeLocked(), questionID, in)
}

// ToggleFlag flips the review marker for a question of the active section.
func (s *Session) ToggleFlag(ctx context.Context, questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != models.StepQuiz {
		return false, ErrInvalidTransition
	}
	section := s.currentSectionLocked()
	if findQuestion(section, questionID) == nil {
		return false, ErrQuestionNotFound
	}
	return s.deps.Store.ToggleFlag(ctx, s.scopeLocked(), section.Type, questionID)
}

// FinishSection ends the active section. Before the timer expires it is
// blocked with ErrSectionIncomplete while any question lacks a complete
// answer; after expiry completion is forced by the timer itself.
func (s *Session) FinishSection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(ctx, false)
}

// Advance proceeds from Finished: into the next section, the next test's
// first section, or the final submission when nothing remains.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step.Terminal() {
		return ErrSessionCompleted
	}
	if s.step != models.StepFinished {
		return ErrInvalidTransition
	}

	if s.sectionIdx < len(s.sections[s.testIdx]) {
		return s.enterSectionLocked(ctx)
	}
	if s.testIdx+1 < len(s.tests) {
		s.testIdx++
		s.sectionIdx = 0
		return s.enterSectionLocked(ctx)
	}
	return s.submitLocked(ctx)
}

// Step returns the current state-machine step.
func (s *Session) Step() models.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Progress returns the session cursor and remaining seconds.
func (s *Session) Progress() models.SessionProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// State snapshots the session for the presentation layer. In the Quiz step
// it rehydrates answers and flags from the store, so a reload observes
// exactly what was captured before.
func (s *Session) State(ctx context.Context) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &SessionState{
		Step:        s.step,
		Message:     s.message,
		Progress:    s.progressLocked(),
		CompletedAt: s.completedAt,
	}
	if s.tests != nil {
		candidate := s.candidate
		state.Candidate = &candidate
	}
	if s.testIdx < len(s.tests) {
		state.Test = &s.tests[s.testIdx]
	}
	section := s.currentSectionLocked()
	if section != nil && (s.step == models.StepSectionAnnouncement || s.step == models.StepQuiz) {
		state.Section = section
	}
	if s.step == models.StepQuiz && section != nil {
		record, err := s.deps.Store.LoadScope(ctx, s.scopeLocked())
		if err != nil {
			return nil, err
		}
		state.Answers = record.Answers
		state.Flagged = record.Flagged
	}
	return state, nil
}

// Close releases the session's tick sources. Called on abandonment; the
// persisted answer scopes are left behind for a later resume.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countdown.Stop()
	s.stopAnnounceLocked()
}

// ===== INTERNAL TRANSITIONS (lock held) =====

func (s *Session) enterSectionLocked(ctx context.Context) error {
	section := s.currentSectionLocked()
	if section == nil {
		return ErrInvalidTransition
	}
	if section.Legacy {
		return s.enterQuizLocked(ctx)
	}
	return s.enterAnnouncementLocked()
}

func (s *Session) enterAnnouncementLocked() error {
	s.step = models.StepSectionAnnouncement
	s.stopAnnounceLocked()
	s.cancelAnnounce = timer.Schedule(s.deps.AnnouncementDelay, s.autoStartSection)
	return nil
}

func (s *Session) autoStartSection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != models.StepSectionAnnouncement {
		return
	}
	if err := s.enterQuizLocked(context.Background()); err != nil {
		s.deps.Logger.LogError(err, "Failed to auto-start section", "token", s.token)
	}
}

func (s *Session) enterQuizLocked(ctx context.Context) error {
	section := s.currentSectionLocked()
	scope := s.scopeLocked()

	record, err := s.deps.Store.LoadScope(ctx, scope)
	if err != nil {
		return err
	}

	now := time.Now()
	remaining := section.Duration
	if record.StartedAt != nil {
		// Reconcile elapsed wall-clock time: a reload resumes with what
		// is left of the section, not a fresh duration.
		remaining = section.Duration - int(now.Sub(*record.StartedAt).Seconds())
	} else if err := s.deps.Store.MarkStarted(ctx, scope, now); err != nil {
		return err
	}

	s.finishing = false
	s.step = models.StepQuiz

	if remaining <= 0 {
		return s.finishLocked(ctx, true)
	}

	s.quizGen++
	gen := s.quizGen
	s.countdown.Start(remaining, func() { s.expireSection(gen) })
	s.publish(ctx, events.EventSectionStarted, map[string]interface{}{
		"test_id":    s.tests[s.testIdx].ID,
		"section_id": section.ID,
		"duration":   remaining,
	})
	return nil
}

// expireSection is the countdown callback. It races semantically with a
// user-initiated finish; the step check plus the finishing guard make the
// transition execute at most once. The generation check discards an expiry
// that fired for a section the session has already left, even when the
// session is back in Quiz for the following section.
func (s *Session) expireSection(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != models.StepQuiz || gen != s.quizGen {
		return
	}
	if err := s.finishLocked(context.Background(), true); err != nil {
		s.deps.Logger.LogError(err, "Forced section finish failed", "token", s.token)
	}
}

func (s *Session) finishLocked(ctx context.Context, forced bool) error {
	if s.step != models.StepQuiz || s.finishing {
		return ErrInvalidTransition
	}

	section := s.currentSectionLocked()
	scope := s.scopeLocked()
	record, err := s.deps.Store.LoadScope(ctx, scope)
	if err != nil {
		return err
	}

	// Once the countdown has run out, a user-initiated finish is forced
	// too; the candidate cannot be stranded behind the completeness check
	// after their time is gone.
	if !s.countdown.Running() {
		forced = true
	}
	if !forced && !sectionComplete(section, record) {
		return ErrSectionIncomplete
	}
	s.finishing = true

	wire, drops := submission.MapSection(section, record.Answers)
	for _, drop := range drops {
		s.deps.Logger.Warn("Dropping inconsistent answer",
			"token", s.token,
			"section_id", section.ID,
			"question_id", drop.QuestionID,
			"reason", drop.Reason)
	}
	s.dropped += len(drops)
	s.batch = append(s.batch, wire...)

	if err := s.deps.Store.ClearScope(ctx, scope); err != nil {
		// The answers are already in the batch; a stale scope record only
		// costs storage.
		s.deps.Logger.LogError(err, "Failed to clear section scope", "token", s.token)
	}

	s.countdown.Stop()
	s.step = models.StepFinished
	s.sectionIdx++

	s.publish(ctx, events.EventSectionCompleted, map[string]interface{}{
		"section_id": section.ID,
		"forced":     forced,
		"answers":    len(wire),
		"dropped":    len(drops),
	})
	return nil
}

func (s *Session) submitLocked(ctx context.Context) error {
	ack, err := s.deps.Gateway.SubmitAnswers(ctx, s.token, s.batch)
	if err != nil {
		if already, ok := gateway.AsAlreadySubmitted(err); ok {
			// Benign: a previous submission made it through.
			s.completedAt = &already.CompletedAt
			s.step = models.StepCompleted
			return nil
		}
		// Stay in Finished so the caller can retry safely.
		s.deps.Logger.LogError(err, "Submission failed", "token", s.token)
		return err
	}

	s.completedAt = &ack.SubmittedAt
	s.step = models.StepCompleted
	s.publish(ctx, events.EventSessionCompleted, map[string]interface{}{
		"answers": len(s.batch),
		"dropped": s.dropped,
	})
	s.deps.Logger.Info("Session completed",
		"token", s.token,
		"answers", len(s.batch),
		"dropped", s.dropped)
	return nil
}

// ===== HELPERS (lock held) =====

func (s *Session) currentSectionLocked() *models.Section {
	if s.testIdx >= len(s.sections) {
		return nil
	}
	sections := s.sections[s.testIdx]
	if s.sectionIdx >= len(sections) {
		return nil
	}
	return &sections[s.sectionIdx]
}

func (s *Session) scopeLocked() store.Scope {
	section := s.currentSectionLocked()
	return store.Scope{
		Token:     s.token,
		TestID:    s.tests[s.testIdx].ID,
		SectionID: section.ID,
	}
}

func (s *Session) progressLocked() models.SessionProgress {
	return models.SessionProgress{
		TestIndex:        s.testIdx,
		SectionIndex:     s.sectionIdx,
		RemainingSeconds: s.countdown.Remaining(),
		Step:             s.step,
	}
}

func (s *Session) stopAnnounceLocked() {
	if s.cancelAnnounce != nil {
		s.cancelAnnounce()
		s.cancelAnnounce = nil
	}
}

func (s *Session) publish(ctx context.Context, eventType events.EventType, payload map[string]interface{}) {
	if s.deps.Events == nil {
		return
	}
	event := events.NewSessionEvent(eventType, s.token, payload)
	if err := s.deps.Events.PublishSessionEvent(ctx, event); err != nil {
		s.deps.Logger.LogError(err, "Failed to publish session event",
			"event_type", eventType,
			"token", s.token)
	}
}

func findQuestion(section *models.Section, questionID string) *models.Question {
	if section == nil {
		return nil
	}
	for i := range section.Questions {
		if section.Questions[i].ID == questionID {
			return &section.Questions[i]
		}
	}
	return nil
}

func sectionComplete(section *models.Section, record *store.ScopeRecord) bool {
	for i := range section.Questions {
		answer, ok := record.Answers[section.Questions[i].ID]
		if !ok || !answer.Complete() {
			return false
		}
	}
	return true
}
