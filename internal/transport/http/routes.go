package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CallerHeader carries the authenticated user ID set by the upstream gateway.
const CallerHeader = "X-User-ID"

type ctxKey int

const ctxKeyCaller ctxKey = iota

func addRoutes(r chi.Router, d Deps) {
	ws := newWSHandler(d.Sessions, d.Events, d.Logger)

	r.Get("/healthz", handleHealth(d.Logger, d.Checks))
	r.Get("/ws/sessions/{sessionID}", ws.serveSession)
	r.Get("/ws/tournaments/{tournamentID}", ws.serveTournament)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/{sessionID}", handleGetSession(d.Sessions))
		r.Get("/{sessionID}/question", handleCurrentQuestion(d.Sessions))
		r.Get("/{sessionID}/leaderboard", handleLeaderboard(d.Sessions))
		r.Get("/{sessionID}/submissions", handleSubmissions(d.Sessions))

		r.Group(func(r chi.Router) {
			r.Use(callerMiddleware)
			r.Post("/", handleCreateSession(d.Sessions, d.Defaults))
			r.Post("/{sessionID}/join", handleJoin(d.Sessions))
			r.Post("/{sessionID}/start", handleStart(d.Sessions))
			r.Post("/{sessionID}/next", handleNext(d.Sessions))
			r.Post("/{sessionID}/end", handleEnd(d.Sessions))
			r.Post("/{sessionID}/answers", handleAnswer(d.Sessions))
		})
	})

	if d.Tournaments == nil {
		return
	}
	r.Route("/api/tournaments", func(r chi.Router) {
		r.Get("/{tournamentID}", handleGetTournament(d.Tournaments))
		r.Get("/{tournamentID}/standings", handleStandings(d.Tournaments))

		r.Group(func(r chi.Router) {
			r.Use(callerMiddleware)
			r.Post("/", handleCreateTournament(d.Tournaments))
			r.Post("/{tournamentID}/matches/{matchID}/play", handlePlayMatch(d.Tournaments, d.Defaults))
			r.Post("/{tournamentID}/matches/{matchID}/result", handleRecordResult(d.Tournaments))
		})
	})
}

func callerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(CallerHeader)
		if caller == "" {
			writeError(w, http.StatusUnauthorized, "missing "+CallerHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(r *http.Request) string {
	caller, _ := r.Context().Value(ctxKeyCaller).(string)
	return caller
}
