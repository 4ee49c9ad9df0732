package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

type tournamentRequest struct {
	Name         string               `json:"name"`
	Format       domain.BracketFormat `json:"format"`
	Participants []string             `json:"participants"`
	Shuffle      bool                 `json:"shuffle"`
	Seed         int64                `json:"seed"`
}

type resultRequest struct {
	WinnerID string `json:"winnerId"`
	Scores   [2]int `json:"scores"`
}

type resultResponse struct {
	Match      domain.Match `json:"match"`
	Completed  bool         `json:"completed"`
	ChampionID string       `json:"championId,omitempty"`
}

func handleCreateTournament(svc *app.TournamentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tournamentRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rec, err := svc.CreateTournament(r.Context(), app.CreateTournamentParams{
			OwnerID:      callerFrom(r),
			Name:         req.Name,
			Format:       req.Format,
			Participants: req.Participants,
			Shuffle:      req.Shuffle,
			Seed:         req.Seed,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func handleGetTournament(svc *app.TournamentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleStandings(svc *app.TournamentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		standings, err := svc.Standings(r.Context(), chi.URLParam(r, "tournamentID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, standings)
	}
}

func handlePlayMatch(svc *app.TournamentService, defaults domain.SessionSettings) http.HandlerFunc {
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
		view, err := svc.PlayMatch(r.Context(), callerFrom(r),
			chi.URLParam(r, "tournamentID"), chi.URLParam(r, "matchID"),
			req.QuizID, req.settings(defaults))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func handleRecordResult(svc *app.TournamentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resultRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := svc.RecordResult(r.Context(), callerFrom(r),
			chi.URLParam(r, "tournamentID"), chi.URLParam(r, "matchID"),
			req.WinnerID, req.Scores)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resultResponse{Match: res.Match, Completed: res.Completed, ChampionID: res.ChampionID})
	}
}
