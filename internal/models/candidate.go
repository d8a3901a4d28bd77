package models

type CandidateStatus string

const (
	CandidateInvited   CandidateStatus = "Invited"
	CandidateActive    CandidateStatus = "Active"
	CandidateCompleted CandidateStatus = "Completed"
)

// Candidate is the person taking the session. It is resolved once from the
// gateway and never mutated afterwards; the engine only reads it for
// identity verification and display.
type Candidate struct {
	IdentityNumber string          `json:"identity_number"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Position       string          `json:"position"`
	Phone          string          `json:"phone"`
	Status         CandidateStatus `json:"status"`
}
