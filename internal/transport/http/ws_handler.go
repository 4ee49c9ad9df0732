package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

type wsHandler struct {
	service  *app.QuizService
	events   Subscriber
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newWSHandler(service *app.QuizService, events Subscriber, logger *slog.Logger) *wsHandler {
	return &wsHandler{
		service: service,
		events:  events,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string              `json:"message"`
	Reason  domain.RejectReason `json:"reason,omitempty"`
}

func errorMessage(err error) outboundMessage {
	p := errorPayload{Message: err.Error()}
	if reason, ok := domain.RejectionReason(err); ok {
		p.Reason = reason
	}
	return outboundMessage{Type: "error", Payload: p}
}

// wsCaller resolves the connecting user. The X-User-ID header is preferred; the
// userId query parameter covers browser clients, which cannot set handshake headers.
func wsCaller(r *http.Request) (string, error) {
	header := r.Header.Get(CallerHeader)
	query := r.URL.Query().Get("userId")
	if header != "" && query != "" && header != query {
		return "", fmt.Errorf("userId does not match %s", CallerHeader)
	}
	if header != "" {
		return header, nil
	}
	return query, nil
}

// serveSession streams session events and accepts answers.
// The caller (see wsCaller) joins with the name query parameter, spectator=true joins as a
// spectator, and an anonymous connection only watches.
func (h *wsHandler) serveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID, err := wsCaller(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	displayName := r.URL.Query().Get("name")
	spectator, _ := strconv.ParseBool(r.URL.Query().Get("spectator"))
	if userID != "" && displayName == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	view, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before joining so the caller sees its own participant.joined.
	updates, cancel := h.events.Subscribe(domain.SessionTopic(sessionID))
	defer cancel()

	first := []outboundMessage{{Type: "session", Payload: view}}
	if userID != "" {
		joined, err := h.service.Join(r.Context(), sessionID, userID, displayName, spectator)
		if err != nil {
			_ = conn.WriteJSON(errorMessage(err))
			return
		}
		first = append(first, outboundMessage{Type: "joined", Payload: joined})
	}
	if q, err := h.service.CurrentQuestion(sessionID); err == nil {
		first = append(first, outboundMessage{Type: string(domain.EventQuestionDisplayed), Payload: q})
	}

	h.pump(conn, updates, first, func(send chan<- outboundMessage, inbound inboundMessage) {
		if userID == "" {
			send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "watch-only connection"}}
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				return
			}
			ack, err := h.service.SubmitAnswer(r.Context(), sessionID, userID, payload.QuestionIndex, payload.OptionIDs)
			if err != nil {
				send <- errorMessage(err)
				return
			}
			send <- outboundMessage{Type: "answerAccepted", Payload: ack}
		default:
			send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	})
}

// serveTournament streams tournament events; it accepts no input.
func (h *wsHandler) serveTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.events.Subscribe(domain.TournamentTopic(tournamentID))
	defer cancel()

	h.pump(conn, updates, nil, func(send chan<- outboundMessage, _ inboundMessage) {
		send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	})
}

// pump runs the single writer, forwards topic updates, and reads client
// messages until the connection closes.
func (h *wsHandler) pump(conn *websocket.Conn, updates <-chan domain.Envelope, first []outboundMessage, onMessage func(chan<- outboundMessage, inboundMessage)) {
	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				// unblocks the reader; keep draining so senders never stall
				_ = conn.Close()
				failed = true
			}
		}
	}()

	for _, msg := range first {
		send <- msg
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(update.Name), Payload: update.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		onMessage(send, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
