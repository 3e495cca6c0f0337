package http

import (
	"net/http"

	"scheduled-exam-service/internal/app"

	"github.com/sirupsen/logrus"
)

// NewRouter wires every route with request ids, access logging and panic recovery.
func NewRouter(service *app.ExamService, presence Presence, auth *Authenticator, log logrus.FieldLogger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	lobby := NewLobbyHandler(service, presence, log)
	NewExamHandler(service, log).Register(mux, auth.Middleware, http.HandlerFunc(lobby.ServeWS))

	return RequestID(Recover(log)(AccessLog(log)(mux)))
}
