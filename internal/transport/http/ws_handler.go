package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"exam-reviewer/internal/app"
	"exam-reviewer/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultTickInterval = 250 * time.Millisecond

// SessionObserver is notified when live sessions open and close.
type SessionObserver interface {
	SessionStarted()
	SessionEnded()
}

// WSOptions tunes the live quiz endpoint.
type WSOptions struct {
	// StrictState sends out-of-sequence events back to the client as errors instead of
	// only logging them.
	StrictState  bool
	TickInterval time.Duration
	Sessions     SessionObserver
}

type WSHandler struct {
	service  *app.QuizService
	logger   *zap.Logger
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger, opts WSOptions) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		opts:    opts,
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

type answerPayload struct {
	OptionID string `json:"optionId"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type publicQuestion struct {
	ID      string          `json:"id"`
	Text    string          `json:"text"`
	Options []domain.Option `json:"options"`
}

type questionPayload struct {
	Index    int            `json:"index"`
	Total    int            `json:"total"`
	Duration int            `json:"duration"`
	Question publicQuestion `json:"question"`
}

type tickPayload struct {
	Elapsed   int `json:"elapsed"`
	Remaining int `json:"remaining"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS runs one timed quiz over a websocket. The client sends "answer" and "next";
// the server pushes "question", "tick", "settled", "submitted" and "error".
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing category"})
		return
	}
	session, err := h.service.Begin(r.Context(), category)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.opts.Sessions != nil {
		h.opts.Sessions.SessionStarted()
		defer h.opts.Sessions.SessionEnded()
	}
	h.logger.Debug("ws session opened", zap.String("category", category))

	ctx, cancel := context.WithCancel(r.Context())
	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	runDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	// emit never blocks once the writer has gone away.
	emit := func(typ string, payload any) {
		select {
		case send <- outboundMessage{Type: typ, Payload: payload}:
		case <-writerDone:
		}
	}

	session.SetHooks(app.Hooks{
		Tick: func(elapsed, remaining int) {
			emit("tick", tickPayload{Elapsed: elapsed, Remaining: remaining})
		},
		Expired: func(st app.Settlement) {
			emit("settled", st)
		},
	})
	emit("question", presentQuestion(session))
	go func() {
		defer close(runDone)
		session.Run(ctx, h.opts.TickInterval)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			st, err := session.SelectAnswer(payload.OptionID)
			if err != nil {
				emit("error", errorPayload{Message: err.Error()})
				continue
			}
			if !st.Applied {
				h.logger.Debug("ignored answer for settled question", zap.String("question", st.QuestionID))
				continue
			}
			emit("settled", st)
		case "next":
			progress, err := session.Advance(ctx)
			if err != nil {
				h.stateOrError(err, emit)
				continue
			}
			if progress.Done {
				emit("submitted", idResponse{ID: progress.ResultID})
				continue
			}
			emit("question", presentQuestion(session))
		default:
			emit("error", errorPayload{Message: "unsupported message type"})
		}
	}

	cancel()
	<-runDone
	close(send)
	<-writerDone
	h.logger.Debug("ws session closed", zap.String("category", category), zap.Int("score", session.Score()))
}

func (h *WSHandler) stateOrError(err error, emit func(string, any)) {
	if errors.Is(err, domain.ErrState) && !h.opts.StrictState {
		h.logger.Debug("ignored out-of-sequence event", zap.Error(err))
		return
	}
	emit("error", errorPayload{Message: err.Error()})
}

func presentQuestion(session *app.Session) questionPayload {
	snap := session.Snapshot()
	q := snap.Questions[snap.Index]
	return questionPayload{
		Index:    snap.Index,
		Total:    len(snap.Questions),
		Duration: int(math.Ceil(session.Duration().Seconds())),
		Question: publicQuestion{ID: q.ID, Text: q.Text, Options: q.Options},
	}
}
