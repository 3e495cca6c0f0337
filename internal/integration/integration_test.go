package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"scheduled-exam-service/internal/app"
	"scheduled-exam-service/internal/domain"
	"scheduled-exam-service/internal/infra/postgres"
	pgmigrations "scheduled-exam-service/internal/infra/postgres/migrations"
	infraredis "scheduled-exam-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

type stack struct {
	service *app.ExamService
	clock   *fakeClock
	bus     *infraredis.EventBus
}

func TestScheduledExamEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	env := newStack(t, ctx)
	service, clock := env.service, env.clock

	exam, err := service.CreateExam(ctx, 1, app.CreateExamInput{
		Title:           "Fiqh of purification",
		StartTime:       clock.now().Add(time.Hour),
		DurationMinutes: 45,
		CategoryIDs:     []int64{10},
		QuestionCount:   2,
		MaxParticipants: intPtr(3),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if exam.TotalQuestions != 2 || len(exam.ExamCode) != domain.ExamCodeLength {
		t.Fatalf("unexpected exam %+v", exam)
	}

	events, cancelSub, err := env.bus.Subscribe(ctx, exam.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelSub()

	if _, err := service.JoinExam(ctx, 2, strings.ToLower(exam.ExamCode)); err != nil {
		t.Fatalf("join: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != domain.EventParticipantJoined || ev.UserID != 2 || ev.CurrentParticipants != 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no join event delivered")
	}

	questions, err := service.GetExamQuestions(ctx, 2, exam.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 frozen questions, got %d", len(questions))
	}
	for _, q := range questions {
		if q.CategoryID != 10 || q.CategoryName == "" {
			t.Fatalf("question from wrong category: %+v", q)
		}
	}

	if _, err := service.StartExam(ctx, 2, exam.ID); !errors.Is(err, domain.ErrNotYetOpen) {
		t.Fatalf("expected not started, got %v", err)
	}
	clock.advance(70 * time.Minute)
	started, err := service.StartExam(ctx, 2, exam.ID)
	if err != nil || started.Status != domain.StatusStarted {
		t.Fatalf("start: %+v %v", started, err)
	}
	if _, err := service.StartExam(ctx, 2, exam.ID); !errors.Is(err, domain.ErrAlreadyStartedOrCompleted) {
		t.Fatalf("expected already started, got %v", err)
	}
	attempt := int64(99)
	done, err := service.CompleteExam(ctx, 2, exam.ID, 8, &attempt)
	if err != nil || done.Status != domain.StatusCompleted || done.Score == nil || *done.Score != 8 {
		t.Fatalf("complete: %+v %v", done, err)
	}

	capability, err := service.Authorize(ctx, 1, exam.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := service.CancelExam(ctx, capability); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := service.JoinExam(ctx, 3, exam.ExamCode); !errors.Is(err, domain.ErrExamCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	details, err := service.GetExamDetails(ctx, exam.ID, 1)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Exam.IsActive || len(details.Participants) != 1 {
		t.Fatalf("cancel must keep participants: %+v", details)
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	env := newStack(t, ctx)
	const capacity = 4
	exam, err := env.service.CreateExam(ctx, 1, app.CreateExamInput{
		Title:           "Seerah",
		StartTime:       env.clock.now().Add(time.Hour),
		DurationMinutes: 30,
		QuestionIDs:     []int64{1, 2},
		MaxParticipants: intPtr(capacity),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		mu     sync.Mutex
		joined int
		full   int
	)
	var g errgroup.Group
	for user := int64(2); user < 2+capacity+6; user++ {
		user := user
		g.Go(func() error {
			_, err := env.service.JoinExam(ctx, user, exam.ExamCode)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, domain.ErrExamFull):
				full++
			default:
				return fmt.Errorf("user %d: %w", user, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined != capacity || full != 6 {
		t.Fatalf("expected %d joined and 6 full, got %d/%d", capacity, joined, full)
	}

	details, err := env.service.GetExamDetails(ctx, exam.ID, 1)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Exam.CurrentParticipants != capacity || len(details.Participants) != capacity {
		t.Fatalf("counter and rows diverged: %d/%d", details.Exam.CurrentParticipants, len(details.Participants))
	}
}

func TestConcurrentDuplicateJoinCountsOnce(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	env := newStack(t, ctx)
	exam, err := env.service.CreateExam(ctx, 1, app.CreateExamInput{
		Title:           "Tajweed",
		StartTime:       env.clock.now().Add(time.Hour),
		DurationMinutes: 30,
		QuestionIDs:     []int64{3},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		mu  sync.Mutex
		ok  int
		dup int
	)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := env.service.JoinExam(ctx, 2, exam.ExamCode)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAlreadyJoined):
				dup++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if ok != 1 || dup != 7 {
		t.Fatalf("expected 1 join and 7 duplicates, got %d/%d", ok, dup)
	}
	view, err := env.service.GetExamByCode(ctx, exam.ExamCode, 2)
	if err != nil {
		t.Fatalf("by code: %v", err)
	}
	if view.CurrentParticipants != 1 || !view.IsRegistered {
		t.Fatalf("unexpected view %+v", view)
	}
}

func newStack(t *testing.T, ctx context.Context) stack {
	t.Helper()
	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	questions := infraredis.NewQuestionCache(redisClient, postgres.NewQuestionBank(pool), 5*time.Minute, log)
	bus := infraredis.NewEventBus(redisClient, log)
	service := app.NewExamService(
		postgres.NewStore(db),
		questions,
		postgres.NewUserDirectory(pool),
		app.WithClock(clock.now),
		app.WithLogger(log),
		app.WithEventBus(bus),
	)
	return stack{service: service, clock: clock, bus: bus}
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for id := int64(1); id <= 12; id++ {
		if _, err := db.ExecContext(ctx, `INSERT INTO users (id, full_name) VALUES (?, ?)`, id, fmt.Sprintf("User %d", id)); err != nil {
			t.Fatalf("insert user: %v", err)
		}
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO categories (id, name_ar, name_en) VALUES (10, 'الطهارة', 'Purification'), (20, 'السيرة', 'Seerah')`); err != nil {
		t.Fatalf("insert categories: %v", err)
	}
	seed := []struct {
		id       int64
		category int64
		text     string
	}{
		{1, 10, "Which water is valid for wudu?"},
		{2, 10, "What breaks wudu?"},
		{3, 10, "When is tayammum allowed?"},
		{4, 20, "Where was the Prophet born?"},
	}
	for _, q := range seed {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (id, category_id, question_ar, question_en, options_ar, options_en, correct_answer)
			 VALUES (?, ?, ?, ?, ARRAY['أ','ب','ج'], ARRAY['a','b','c'], 0)`,
			q.id, q.category, q.text, q.text); err != nil {
			t.Fatalf("insert question %d: %v", q.id, err)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
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

func intPtr(v int) *int { return &v }

func TestPostgresRegistryRerollsTakenCode(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL))), pgdialect.New())
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	var (
		mu    sync.Mutex
		codes = []string{"SAMECODE", "SAMECODE", "FRESH123", "SAMECODE", "FRESH123"}
	)
	gen := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return "SAMECODE", nil
		}
		next := codes[0]
		codes = codes[1:]
		return next, nil
	}
	registry := postgres.NewExamRegistry(db, postgres.WithCodeGenerator(gen, 3))

	newExam := func() *domain.ScheduledExam {
		return &domain.ScheduledExam{
			Title:           "Zakat",
			StartTime:       time.Now().Add(time.Hour),
			DurationMinutes: 30,
			QuestionIDs:     []int64{1},
			TotalQuestions:  1,
			IsActive:        true,
			CreatorID:       1,
		}
	}

	first, second := newExam(), newExam()
	if err := registry.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := registry.Create(ctx, second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.ExamCode != "SAMECODE" || second.ExamCode != "FRESH123" || first.ID == second.ID {
		t.Fatalf("expected distinct codes, got %q/%d and %q/%d", first.ExamCode, first.ID, second.ExamCode, second.ID)
	}

	// Every remaining candidate is taken.
	if err := registry.Create(ctx, newExam()); err == nil {
		t.Fatalf("expected failure once attempts run out")
	}

	stored, err := registry.FindByCode(ctx, "FRESH123")
	if err != nil || stored.ID != second.ID {
		t.Fatalf("find re-rolled exam: %+v %v", stored, err)
	}
	count, err := db.NewSelect().Table("scheduled_exams").Count(ctx)
	if err != nil {
		t.Fatalf("count exams: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored exams, got %d", count)
	}
}
