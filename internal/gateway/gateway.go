// Package gateway wraps the upstream identity/session gateway: it resolves
// a session token into candidate and test data, and delivers the final
// answer batch. Its internals are the gateway's business; this package
// only pins down the contract the engine relies on.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TalentGate/candidate-session-service/internal/models"
)

var ErrTokenInvalid = errors.New("session token is invalid")

// AlreadySubmittedError reports that the session's test has already been
// submitted. It is a benign terminal outcome, not a failure.
type AlreadySubmittedError struct {
	CompletedAt time.Time
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("test already submitted at %s", e.CompletedAt.Format(time.RFC3339))
}

// AsAlreadySubmitted unwraps err into an AlreadySubmittedError if it is one.
func AsAlreadySubmitted(err error) (*AlreadySubmittedError, bool) {
	var already *AlreadySubmittedError
	if errors.As(err, &already) {
		return already, true
	}
	return nil, false
}

// NetworkError wraps a transport failure. Callers may retry; the engine
// never retries on its own.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SubmitAck acknowledges a delivered batch.
type SubmitAck struct {
	ReceivedCount int       `json:"received_count"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Gateway is the remote collaborator the engine talks to. Exactly one
// SubmitAnswers call succeeds per session; deduplication of retried
// submissions is the gateway's responsibility.
type Gateway interface {
	FetchSession(ctx context.Context, token string) (*models.SessionData, error)
	SubmitAnswers(ctx context.Context, token string, answers []models.WireAnswer) (*SubmitAck, error)
}
