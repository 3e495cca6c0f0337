package http

import (
	"context"
	"net/http"
	"time"

	"scheduled-exam-service/internal/app"
	"scheduled-exam-service/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Presence counts lobby sockets per exam (in-memory or Redis).
type Presence interface {
	Enter(ctx context.Context, examID int64) (int, error)
	Leave(ctx context.Context, examID int64) (int, error)
}

// LobbyHandler streams exam events to websocket clients.
type LobbyHandler struct {
	service  *app.ExamService
	presence Presence
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewLobbyHandler(service *app.ExamService, presence Presence, log logrus.FieldLogger) *LobbyHandler {
	return &LobbyHandler{
		service:  service,
		presence: presence,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type snapshotPayload struct {
	Details  domain.ExamDetailsView `json:"details"`
	Watchers int                    `json:"watchers"`
}

// ServeWS sends a snapshot of the exam, then every event until the client leaves.
func (h *LobbyHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, examID, err := userAndExam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	events, cancel, err := h.service.Subscribe(r.Context(), examID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer cancel()

	details, err := h.service.GetExamDetails(r.Context(), examID, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	fields := logrus.Fields{"exam_id": examID, "user_id": userID}
	watchers, err := h.presence.Enter(r.Context(), examID)
	if err != nil {
		h.log.WithError(err).WithFields(fields).Warn("lobby presence enter")
	}
	defer func() {
		// the request context is gone once the client disconnects
		ctx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		if _, err := h.presence.Leave(ctx, examID); err != nil {
			h.log.WithError(err).WithFields(fields).Warn("lobby presence leave")
		}
	}()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).WithFields(fields).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(event.Type), Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "snapshot", Payload: snapshotPayload{Details: details, Watchers: watchers}}

	// The lobby is read-only; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}
