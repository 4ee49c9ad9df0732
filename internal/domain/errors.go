package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question reference is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNoOptionSelected is returned for an empty answer.
	ErrNoOptionSelected = errors.New("no option selected")

	ErrNotAuthorized         = errors.New("caller is not authorized for this operation")
	ErrSessionFull           = errors.New("session is full")
	ErrSessionClosed         = errors.New("session no longer accepts players")
	ErrInvalidTransition     = errors.New("invalid session transition")
	ErrNotEnoughParticipants = errors.New("not enough participants to start")
	ErrInvalidSettings       = errors.New("invalid session settings")

	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrTournamentCompleted = errors.New("tournament already completed")
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchNotReady       = errors.New("match is waiting for participants")
	ErrMatchCompleted      = errors.New("match result already recorded")
	ErrInvalidWinner       = errors.New("winner does not play in this match")
	ErrDrawNotAllowed      = errors.New("draws are only allowed in round robin")
	ErrNotEnoughEntrants   = errors.New("a tournament needs at least two distinct participants")
	ErrUnknownFormat       = errors.New("unknown bracket format")
	// ErrSlotOccupied means advancement tried to fill a slot twice; it is always an invariant bug.
	ErrSlotOccupied = errors.New("bracket slot already filled")
)

// RejectReason explains why an answer was refused.
type RejectReason string

const (
	RejectNotActive       RejectReason = "not_active"
	RejectTooLate         RejectReason = "too_late"
	RejectWrongQuestion   RejectReason = "wrong_question"
	RejectAlreadyAnswered RejectReason = "already_answered"
	RejectEliminated      RejectReason = "eliminated"
	RejectSpectator       RejectReason = "spectator"
)

// AnswerRejectedError is the validation error for a refused submission.
type AnswerRejectedError struct {
	Reason RejectReason
}

func (e *AnswerRejectedError) Error() string {
	return "answer rejected: " + string(e.Reason)
}

// Is matches another AnswerRejectedError with the same reason.
func (e *AnswerRejectedError) Is(target error) bool {
	t, ok := target.(*AnswerRejectedError)
	return ok && t.Reason == e.Reason
}

// Rejected builds an AnswerRejectedError.
func Rejected(reason RejectReason) error {
	return &AnswerRejectedError{Reason: reason}
}

// RejectionReason extracts the reason from err, if any.
func RejectionReason(err error) (RejectReason, bool) {
	var rej *AnswerRejectedError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// InvariantViolation reports a data-integrity bug. It is fatal to the owning session or tournament.
type InvariantViolation struct {
	Scope  string
	ID     string
	Detail string
	Err    error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s %s: %s", e.Scope, e.ID, e.Detail)
}

func (e *InvariantViolation) Unwrap() error { return e.Err }

// IsInvariantViolation reports whether err wraps an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
