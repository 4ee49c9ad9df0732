package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

// SessionRequest configures a new session. Omitted fields take the server defaults.
type SessionRequest struct {
	QuizID             string                    `json:"quizId"`
	Kind               domain.SessionKind        `json:"kind"`
	TimeLimitSeconds   int                       `json:"timeLimitSeconds"`
	AutoAdvanceSeconds int                       `json:"autoAdvanceSeconds"`
	RandomizeQuestions bool                      `json:"randomizeQuestions"`
	MinParticipants    int                       `json:"minParticipants"`
	MaxParticipants    int                       `json:"maxParticipants"`
	Scoring            *domain.ScoringConfig     `json:"scoring"`
	Elimination        *domain.EliminationConfig `json:"elimination"`
}

func (req SessionRequest) settings(defaults domain.SessionSettings) domain.SessionSettings {
	s := defaults
	if req.Kind != "" {
		s.Kind = req.Kind
	}
	if req.TimeLimitSeconds > 0 {
		s.DefaultTimeLimit = time.Duration(req.TimeLimitSeconds) * time.Second
	}
	if req.AutoAdvanceSeconds > 0 {
		s.AutoAdvance = time.Duration(req.AutoAdvanceSeconds) * time.Second
	}
	s.RandomizeQuestions = req.RandomizeQuestions
	s.MinParticipants = req.MinParticipants
	s.MaxParticipants = req.MaxParticipants
	if req.Scoring != nil {
		s.Scoring = *req.Scoring
	}
	if req.Elimination != nil {
		s.Elimination = *req.Elimination
	}
	return s
}

type joinRequest struct {
	DisplayName string `json:"displayName"`
	Spectator   bool   `json:"spectator"`
}

type answerRequest struct {
	QuestionIndex int      `json:"questionIndex"`
	OptionIDs     []string `json:"optionIds"`
}

func handleCreateSession(svc *app.QuizService, defaults domain.SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.QuizID == "" {
			writeError(w, http.StatusBadRequest, "quizId is required")
			return
		}
		view, err := svc.CreateSession(r.Context(), callerFrom(r), req.QuizID, req.settings(defaults))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func handleGetSession(svc *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleJoin(svc *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.DisplayName == "" {
			writeError(w, http.StatusBadRequest, "displayName is required")
			return
		}
		p, err := svc.Join(r.Context(), chi.URLParam(r, "sessionID"), callerFrom(r), req.DisplayName, req.Spectator)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ownerAction wraps the owner-only transitions that carry no body.
func ownerAction(action func(r *http.Request, sessionID, callerID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(r, chi.URLParam(r, "sessionID"), callerFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleStart(svc *app.QuizService) http.HandlerFunc {
	return ownerAction(func(r *http.Request, id, caller string) error {
		return svc.Start(r.Context(), id, caller)
	})
}

func handleNext(svc *app.QuizService) http.HandlerFunc {
	return ownerAction(func(r *http.Request, id, caller string) error {
		return svc.NextQuestion(r.Context(), id, caller)
	})
}

func handleEnd(svc *app.QuizService) http.HandlerFunc {
	return ownerAction(func(r *http.Request, id, caller string) error {
		return svc.End(r.Context(), id, caller)
	})
}

func handleAnswer(svc *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ack, err := svc.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), callerFrom(r), req.QuestionIndex, req.OptionIDs)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, ack)
	}
}

func handleCurrentQuestion(svc *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.CurrentQuestion(chi.URLParam(r, "sessionID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func handleLeaderboard(svc *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := 0
		if raw := r.URL.Query().Get("version"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				writeError(w, http.StatusBadRequest, "version must be a positive integer")
				return
			}
			version = v
		}
		lb, err := svc.Leaderboard(r.Context(), chi.URLParam(r, "sessionID"), version)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lb)
	}
}

func handleSubmissions(svc *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := svc.Submissions(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subs)
	}
}
