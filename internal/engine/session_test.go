package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TalentGate/candidate-session-service/internal/events"
	"github.com/TalentGate/candidate-session-service/internal/gateway"
	"github.com/TalentGate/candidate-session-service/internal/models"
	"github.com/TalentGate/candidate-session-service/internal/store"
	"github.com/TalentGate/candidate-session-service/internal/utils"
	"github.com/TalentGate/candidate-session-service/internal/validator"
)

// fakeGateway is an in-memory Gateway for driving the engine in tests.
type fakeGateway struct {
	mu        sync.Mutex
	data      *models.SessionData
	fetchErr  error
	submitErr error
	batches   [][]models.WireAnswer
}

func (f *fakeGateway) FetchSession(ctx context.Context, token string) (*models.SessionData, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.data, nil
}

func (f *fakeGateway) SubmitAnswers(ctx context.Context, token string, answers []models.WireAnswer) (*gateway.SubmitAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.batches = append(f.batches, answers)
	return &gateway.SubmitAck{ReceivedCount: len(answers), SubmittedAt: time.Now()}, nil
}

func (f *fakeGateway) submittedBatches() [][]models.WireAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

func rankedQuestion(id string, optionIDs ...string) models.Question {
	q := models.Question{ID: id}
	for _, optionID := range optionIDs {
		q.Options = append(q.Options, models.Option{
			ID:             optionID,
			MostDimension:  "D",
			LeastDimension: "I",
		})
	}
	return q
}

func choiceQuestion(id string, optionIDs ...string) models.Question {
	q := models.Question{ID: id}
	for _, optionID := range optionIDs {
		q.Options = append(q.Options, models.Option{ID: optionID})
	}
	return q
}

func rankedPairSession() *models.SessionData {
	return &models.SessionData{
		Candidate: models.Candidate{IdentityNumber: "3201-0001", Name: "Ayu"},
		Tests: []models.TestInfo{{
			ID:       "test-1",
			Name:     "Personality",
			Duration: 60,
			Sections: []models.Section{{
				ID:       "sec-1",
				Type:     models.SectionRankedPair,
				Duration: 60,
				Questions: []models.Question{
					rankedQuestion("q1", "A", "B"),
					rankedQuestion("q2", "C", "D"),
				},
			}},
		}},
	}
}

type fixture struct {
	session *Session
	gw      *fakeGateway
	pub     *events.MockEventPublisher
	kv      store.KV
}

func newFixture(t *testing.T, data *models.SessionData) *fixture {
	t.Helper()
	return newFixtureWithKV(t, data, store.NewMemoryKV())
}

func newFixtureWithKV(t *testing.T, data *models.SessionData, kv store.KV) *fixture {
	t.Helper()
	gw := &fakeGateway{data: data}
	pub := events.NewMockEventPublisher()
	session := NewSession("tok-1", Dependencies{
		Store:             store.NewAnswerStore(kv),
		Gateway:           gw,
		Events:            pub,
		Logger:            utils.NewDevelopmentLogger(),
		Validator:         validator.New(),
		AnnouncementDelay: time.Minute,
	})
	return &fixture{session: session, gw: gw, pub: pub, kv: kv}
}

// currentGen reads the quiz generation the active countdown was started for.
func currentGen(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quizGen
}

// walks the session into the quiz of the current section
func (f *fixture) enterQuiz(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))
	require.True(t, f.session.Verify("3201-0001"))
	require.NoError(t, f.session.StartTest(ctx))
	if f.session.Step() == models.StepSectionAnnouncement {
		require.NoError(t, f.session.StartSection(ctx))
	}
	require.Equal(t, models.StepQuiz, f.session.Step())
}

func TestSession_VerifyMismatchStaysInLogin(t *testing.T) {
	f := newFixture(t, rankedPairSession())
	require.NoError(t, f.session.Start(context.Background()))

	assert.False(t, f.session.Verify("wrong"))
	assert.Equal(t, models.StepLogin, f.session.Step())

	assert.True(t, f.session.Verify(" 3201-0001 "))
	assert.Equal(t, models.StepReminder, f.session.Step())
}

func TestSession_CompleteRankedPairFlow(t *testing.T) {
	// Scenario: one ranked-pair section, both questions answered, finish
	// before expiry, advance submits a batch of two distinct pairs.
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)
	_, err = f.session.RecordAnswer(ctx, "q2", models.NewRankedPairAnswer("C", "D"))
	require.NoError(t, err)

	require.NoError(t, f.session.FinishSection(ctx))
	assert.Equal(t, models.StepFinished, f.session.Step())

	require.NoError(t, f.session.Advance(ctx))
	assert.Equal(t, models.StepCompleted, f.session.Step())

	batches := f.gw.submittedBatches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	for _, wire := range batches[0] {
		assert.Equal(t, "sec-1", wire.SectionID)
		assert.NotEqual(t, wire.MostOptionID, wire.LeastOptionID)
	}
}

func TestSession_FinishBlockedWhileIncomplete(t *testing.T) {
	// Scenario: one of two questions answered, timer still running.
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)

	err = f.session.FinishSection(ctx)
	assert.ErrorIs(t, err, ErrSectionIncomplete)
	assert.Equal(t, models.StepQuiz, f.session.Step())
}

func TestSession_ExpiryForcesFinishExactlyOnce(t *testing.T) {
	// Scenario: expiry and a pending user finish race; the transition
	// must run once.
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)

	gen := currentGen(f.session)
	f.session.expireSection(gen)
	assert.Equal(t, models.StepFinished, f.session.Step())

	// The late user click and a duplicate expiry are both rejected.
	assert.ErrorIs(t, f.session.FinishSection(ctx), ErrInvalidTransition)
	f.session.expireSection(gen)

	progress := f.session.Progress()
	assert.Equal(t, 1, progress.SectionIndex)

	require.NoError(t, f.session.Advance(ctx))
	batches := f.gw.submittedBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 1)
}

func twoSectionSession() *models.SessionData {
	return &models.SessionData{
		Candidate: models.Candidate{IdentityNumber: "3201-0001", Name: "Ayu"},
		Tests: []models.TestInfo{{
			ID:       "test-1",
			Name:     "Personality",
			Duration: 120,
			Sections: []models.Section{
				{
					ID:       "sec-1",
					Type:     models.SectionRankedPair,
					Duration: 60,
					Questions: []models.Question{
						rankedQuestion("q1", "A", "B"),
					},
				},
				{
					ID:       "sec-2",
					Type:     models.SectionRankedPair,
					Duration: 60,
					Questions: []models.Question{
						rankedQuestion("q2", "C", "D"),
					},
				},
			},
		}},
	}
}

func TestSession_StaleExpiryLeavesNextSectionAlone(t *testing.T) {
	// Scenario: the first section's expiry callback is delayed until after
	// the candidate has finished that section and entered the next quiz.
	// The late callback must not force-finish the section it never timed.
	f := newFixture(t, twoSectionSession())
	ctx := context.Background()
	f.enterQuiz(t)
	staleGen := currentGen(f.session)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)
	require.NoError(t, f.session.FinishSection(ctx))

	require.NoError(t, f.session.Advance(ctx))
	require.NoError(t, f.session.StartSection(ctx))
	require.Equal(t, models.StepQuiz, f.session.Step())

	f.session.expireSection(staleGen)
	assert.Equal(t, models.StepQuiz, f.session.Step())
	assert.Equal(t, 1, f.session.Progress().SectionIndex)

	_, err = f.session.RecordAnswer(ctx, "q2", models.NewRankedPairAnswer("C", "D"))
	require.NoError(t, err)
	require.NoError(t, f.session.FinishSection(ctx))
	require.NoError(t, f.session.Advance(ctx))

	batches := f.gw.submittedBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestSession_ExpiryWithNoAnswersSubmitsEmptyBatch(t *testing.T) {
	// Scenario: the timer runs out before the candidate answers anything.
	// The forced finish still goes through and the submission carries an
	// empty batch for the section.
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	f.session.expireSection(currentGen(f.session))
	assert.Equal(t, models.StepFinished, f.session.Step())

	require.NoError(t, f.session.Advance(ctx))
	assert.Equal(t, models.StepCompleted, f.session.Step())

	batches := f.gw.submittedBatches()
	require.Len(t, batches, 1)
	assert.Empty(t, batches[0])
}

func TestSession_UserFinishForcedAfterTimerExpired(t *testing.T) {
	// Scenario: the countdown has already run out but the expiry transition
	// did not land. The candidate's own finish must go through without the
	// completeness check instead of stranding them in the quiz.
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)

	f.session.countdown.Stop()
	require.NoError(t, f.session.FinishSection(ctx))
	assert.Equal(t, models.StepFinished, f.session.Step())

	require.NoError(t, f.session.Advance(ctx))
	batches := f.gw.submittedBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 1)
}

func TestSession_AnnouncementAutoAdvancesIntoQuiz(t *testing.T) {
	gw := &fakeGateway{data: rankedPairSession()}
	session := NewSession("tok-1", Dependencies{
		Store:             store.NewAnswerStore(store.NewMemoryKV()),
		Gateway:           gw,
		Events:            events.NewMockEventPublisher(),
		Logger:            utils.NewDevelopmentLogger(),
		Validator:         validator.New(),
		AnnouncementDelay: 10 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))
	require.True(t, session.Verify("3201-0001"))
	require.NoError(t, session.StartTest(ctx))
	require.Equal(t, models.StepSectionAnnouncement, session.Step())

	// No StartSection call: the announcement delay moves the session on
	// its own.
	assert.Eventually(t, func() bool {
		return session.Step() == models.StepQuiz
	}, time.Second, time.Millisecond)
	session.Close()
}

func TestSession_InvalidSectionTypeFailsResolution(t *testing.T) {
	data := rankedPairSession()
	data.Tests[0].Sections[0].Type = "essay"
	f := newFixture(t, data)

	err := f.session.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.StepError, f.session.Step())
}

func TestSession_LegacyTestThenSectionedTest(t *testing.T) {
	// Scenario: test 1 is legacy (no sections), test 2 has one
	// single-choice section; advancing out of test 1 must announce test
	// 2's section instead of completing.
	data := &models.SessionData{
		Candidate: models.Candidate{IdentityNumber: "3201-0001"},
		Tests: []models.TestInfo{
			{
				ID:       "test-legacy",
				Duration: 30,
				Type:     string(models.SectionSingleChoiceScored),
				Questions: []models.Question{
					choiceQuestion("q1", "A", "B"),
				},
			},
			{
				ID:       "test-2",
				Duration: 30,
				Sections: []models.Section{{
					ID:       "sec-2",
					Type:     models.SectionSingleChoiceScored,
					Duration: 30,
					Questions: []models.Question{
						choiceQuestion("q2", "A", "B"),
					},
				}},
			},
		},
	}
	f := newFixture(t, data)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx))
	require.True(t, f.session.Verify("3201-0001"))

	// Legacy test skips the announcement.
	require.NoError(t, f.session.StartTest(ctx))
	require.Equal(t, models.StepQuiz, f.session.Step())

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewSingleChoiceAnswer("A"))
	require.NoError(t, err)
	require.NoError(t, f.session.FinishSection(ctx))

	require.NoError(t, f.session.Advance(ctx))
	assert.Equal(t, models.StepSectionAnnouncement, f.session.Step())

	require.NoError(t, f.session.StartSection(ctx))
	_, err = f.session.RecordAnswer(ctx, "q2", models.NewSingleChoiceAnswer("B"))
	require.NoError(t, err)
	require.NoError(t, f.session.FinishSection(ctx))
	require.NoError(t, f.session.Advance(ctx))
	assert.Equal(t, models.StepCompleted, f.session.Step())

	batches := f.gw.submittedBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestSession_AlreadySubmittedTokenNeverEntersQuiz(t *testing.T) {
	completedAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, nil)
	f.gw.fetchErr = &gateway.AlreadySubmittedError{CompletedAt: completedAt}

	require.NoError(t, f.session.Start(context.Background()))
	assert.Equal(t, models.StepTestAlreadyCompleted, f.session.Step())

	state, err := f.session.State(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state.CompletedAt)
	assert.Equal(t, completedAt, *state.CompletedAt)

	// Terminal: nothing moves the session anymore.
	assert.False(t, f.session.Verify("3201-0001"))
	assert.ErrorIs(t, f.session.Advance(context.Background()), ErrSessionCompleted)
}

func TestSession_ResolutionFailureLandsInError(t *testing.T) {
	f := newFixture(t, nil)
	f.gw.fetchErr = gateway.ErrTokenInvalid

	err := f.session.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.StepError, f.session.Step())
}

func TestSession_RehydrationRestoresAnswersAndFlags(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()

	first := newFixtureWithKV(t, rankedPairSession(), kv)
	first.enterQuiz(t)
	_, err := first.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)
	_, err = first.session.ToggleFlag(ctx, "q2")
	require.NoError(t, err)
	first.session.Close()

	// A fresh session over the same token and store sees exactly the
	// captured answers and flags.
	second := newFixtureWithKV(t, rankedPairSession(), kv)
	second.enterQuiz(t)

	state, err := second.session.State(ctx)
	require.NoError(t, err)
	require.Len(t, state.Answers, 1)
	assert.Equal(t, "A", state.Answers["q1"].RankedPair.Most)
	assert.Equal(t, []string{"q2"}, state.Flagged)
}

func TestSession_RehydrationReconcilesElapsedTime(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	answerStore := store.NewAnswerStore(kv)

	// Simulate a section entered 40 seconds ago.
	scope := store.Scope{Token: "tok-1", TestID: "test-1", SectionID: "sec-1"}
	require.NoError(t, answerStore.MarkStarted(ctx, scope, time.Now().Add(-40*time.Second)))

	f := newFixtureWithKV(t, rankedPairSession(), kv)
	f.enterQuiz(t)

	remaining := f.session.Progress().RemainingSeconds
	assert.LessOrEqual(t, remaining, 20)
	assert.Greater(t, remaining, 10)
}

func TestSession_SubmissionFailureIsRetryable(t *testing.T) {
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)
	_, err = f.session.RecordAnswer(ctx, "q2", models.NewRankedPairAnswer("C", "D"))
	require.NoError(t, err)
	require.NoError(t, f.session.FinishSection(ctx))

	f.gw.submitErr = &gateway.NetworkError{Op: "submit answers", Err: errors.New("connection refused")}
	err = f.session.Advance(ctx)
	assert.Error(t, err)
	assert.Equal(t, models.StepFinished, f.session.Step())

	// Retry after the gateway recovers.
	f.gw.submitErr = nil
	require.NoError(t, f.session.Advance(ctx))
	assert.Equal(t, models.StepCompleted, f.session.Step())
	require.Len(t, f.gw.submittedBatches(), 1)
}

func TestSession_AlreadySubmittedOnSubmitIsBenign(t *testing.T) {
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)
	_, err = f.session.RecordAnswer(ctx, "q2", models.NewRankedPairAnswer("C", "D"))
	require.NoError(t, err)
	require.NoError(t, f.session.FinishSection(ctx))

	f.gw.submitErr = &gateway.AlreadySubmittedError{CompletedAt: time.Now()}
	require.NoError(t, f.session.Advance(ctx))
	assert.Equal(t, models.StepCompleted, f.session.Step())
}

func TestSession_LifecycleEventsPublished(t *testing.T) {
	f := newFixture(t, rankedPairSession())
	ctx := context.Background()
	f.enterQuiz(t)

	_, err := f.session.RecordAnswer(ctx, "q1", models.NewRankedPairAnswer("A", "B"))
	require.NoError(t, err)
	_, err = f.session.RecordAnswer(ctx, "q2", models.NewRankedPairAnswer("C", "D"))
	require.NoError(t, err)
	require.NoError(t, f.session.FinishSection(ctx))
	require.NoError(t, f.session.Advance(ctx))

	var types []events.EventType
	for _, event := range f.pub.PublishedEvents() {
		types = append(types, event.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventSessionVerified,
		events.EventSectionStarted,
		events.EventSectionCompleted,
		events.EventSessionCompleted,
	}, types)
}

func TestManager_OpenGetDiscard(t *testing.T) {
	gw := &fakeGateway{data: rankedPairSession()}
	manager := NewManager(Dependencies{
		Store:             store.NewAnswerStore(store.NewMemoryKV()),
		Gateway:           gw,
		Events:            events.NewMockEventPublisher(),
		Logger:            utils.NewDevelopmentLogger(),
		Validator:         validator.New(),
		AnnouncementDelay: time.Minute,
	})
	ctx := context.Background()

	session, err := manager.Open(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepLogin, session.Step())

	again, err := manager.Open(ctx, "tok-1")
	require.NoError(t, err)
	assert.Same(t, session, again)

	got, err := manager.Get("tok-1")
	require.NoError(t, err)
	assert.Same(t, session, got)

	manager.Discard("tok-1")
	_, err = manager.Get("tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// slowGateway holds every fetch until released, so tests can line up
// concurrent opens against an unfinished resolution.
type slowGateway struct {
	*fakeGateway
	release chan struct{}
}

func (g *slowGateway) FetchSession(ctx context.Context, token string) (*models.SessionData, error) {
	<-g.release
	return g.fakeGateway.FetchSession(ctx, token)
}

func TestManager_ConcurrentOpensWaitForResolution(t *testing.T) {
	// Scenario: two opens for the same token race while the gateway is
	// still resolving. Neither caller may get back a session whose data
	// has not arrived, where even a correct identity number would bounce.
	gw := &slowGateway{
		fakeGateway: &fakeGateway{data: rankedPairSession()},
		release:     make(chan struct{}),
	}
	manager := NewManager(Dependencies{
		Store:             store.NewAnswerStore(store.NewMemoryKV()),
		Gateway:           gw,
		Events:            events.NewMockEventPublisher(),
		Logger:            utils.NewDevelopmentLogger(),
		Validator:         validator.New(),
		AnnouncementDelay: time.Minute,
	})
	ctx := context.Background()

	type opened struct {
		session *Session
		err     error
	}
	results := make(chan opened, 2)
	for i := 0; i < 2; i++ {
		go func() {
			session, err := manager.Open(ctx, "tok-1")
			results <- opened{session: session, err: err}
		}()
	}

	close(gw.release)

	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Same(t, first.session, second.session)

	// Both callers observe the resolved session.
	assert.Equal(t, models.StepLogin, first.session.Step())
	assert.True(t, first.session.Verify("3201-0001"))
}
