package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"scheduled-exam-service/internal/app"
	"scheduled-exam-service/internal/domain"
	"scheduled-exam-service/internal/infra/memory"

	"github.com/sirupsen/logrus"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	auth     *Authenticator
	clock    *fakeClock
	presence *memory.LobbyPresence
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	users := memory.NewUserDirectory(
		domain.User{ID: 1, FullName: "Organizer"},
		domain.User{ID: 2, FullName: "Aisha"},
		domain.User{ID: 3, FullName: "Omar"},
	)
	bank := memory.NewStaticQuestionBank([]domain.Question{
		{ID: 1, CategoryID: 10, PromptAr: "س١", PromptEn: "Q1", OptionsEn: []string{"a", "b", "c", "d"}, CorrectAnswer: 2},
		{ID: 2, CategoryID: 10, PromptAr: "س٢", PromptEn: "Q2", OptionsEn: []string{"a", "b", "c", "d"}, CorrectAnswer: 0},
	})
	store := memory.NewStore(memory.NewExamRegistry(), memory.NewParticipationLedger())
	service := app.NewExamService(store, bank, users, app.WithClock(clock.now), app.WithLogger(log))

	auth := NewAuthenticator(testSecret, "scheduled-exam-service", time.Hour, log)
	presence := memory.NewLobbyPresence()
	server := httptest.NewServer(NewRouter(service, presence, auth, log))
	t.Cleanup(server.Close)
	return &testServer{Server: server, auth: auth, clock: clock, presence: presence}
}

func (s *testServer) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := s.auth.Issue(userID, "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// do sends body as JSON for userID (0 means anonymous) and decodes the response into out.
func (s *testServer) do(t *testing.T, method, path string, userID int64, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) createExam(t *testing.T, maxParticipants *int) domain.ScheduledExamView {
	t.Helper()
	var view domain.ScheduledExamView
	status := s.do(t, http.MethodPost, "/exams", 1, map[string]any{
		"title":           "Friday exam",
		"startTime":       s.clock.now().Add(time.Hour),
		"durationMinutes": 30,
		"questionIds":     []int64{2, 1},
		"maxParticipants": maxParticipants,
	}, &view)
	if status != http.StatusOK {
		t.Fatalf("create exam: status %d", status)
	}
	return view
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
