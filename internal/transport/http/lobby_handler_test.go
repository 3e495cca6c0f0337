package http

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestLobbyStreamsSnapshotAndEvents(t *testing.T) {
	srv := newTestServer(t)
	exam := srv.createExam(t, nil)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/exams/%d/lobby?token=%s", exam.ID, srv.token(t, 1))
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	typ, payload := readNext(t, conn)
	if typ != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", typ)
	}
	if payload["watchers"].(float64) != 1 {
		t.Fatalf("expected one watcher, got %v", payload["watchers"])
	}

	if status := srv.do(t, http.MethodPost, "/exams/join", 2, map[string]string{"examCode": exam.ExamCode}, nil); status != http.StatusOK {
		t.Fatalf("join: %d", status)
	}

	typ, payload = readNext(t, conn)
	if typ != "participant_joined" {
		t.Fatalf("expected participant_joined, got %s", typ)
	}
	if payload["userId"].(float64) != 2 || payload["currentParticipants"].(float64) != 1 {
		t.Fatalf("unexpected event payload %v", payload)
	}
}

func TestLobbyRequiresAuthAndExistingExam(t *testing.T) {
	srv := newTestServer(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/exams/1/lobby", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v %v", resp, err)
	}

	_, resp, err = websocket.DefaultDialer.Dial(base+"/exams/999/lobby?token="+srv.token(t, 1), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown exam, got %v %v", resp, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}
