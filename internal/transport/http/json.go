package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

type errorBody struct {
	Error  string              `json:"error"`
	Reason domain.RejectReason `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	if reason, ok := domain.RejectionReason(err); ok {
		body.Reason = reason
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	var rejected *domain.AnswerRejectedError
	switch {
	case errors.As(err, &rejected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrTournamentNotFound),
		errors.Is(err, domain.ErrMatchNotFound),
		errors.Is(err, app.ErrLeaderboardNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrNoOptionSelected),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrUnknownFormat),
		errors.Is(err, domain.ErrNotEnoughEntrants),
		errors.Is(err, domain.ErrInvalidWinner),
		errors.Is(err, domain.ErrDrawNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionFull),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotEnoughParticipants),
		errors.Is(err, domain.ErrTournamentCompleted),
		errors.Is(err, domain.ErrMatchNotReady),
		errors.Is(err, domain.ErrMatchCompleted),
		errors.Is(err, domain.ErrSlotOccupied):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
