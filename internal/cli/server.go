package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scheduled-exam-service/internal/app"
	"scheduled-exam-service/internal/config"
	"scheduled-exam-service/internal/domain"
	"scheduled-exam-service/internal/infra/memory"
	"scheduled-exam-service/internal/infra/postgres"
	infraredis "scheduled-exam-service/internal/infra/redis"
	transport "scheduled-exam-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or JWT_SECRET) is required")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var (
		store  app.Store
		loader memory.QuestionLoader
		users  app.UserDirectory
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		store = postgres.NewStore(db, postgres.WithCodeGenerator(domain.GenerateExamCode, cfg.Exam.CodeAttempts))
		loader = postgres.NewQuestionBank(pool)
		users = postgres.NewUserDirectory(pool)
	} else {
		log.Warn("postgres not configured; using in-memory store with sample data")
		store = memory.NewStore(
			memory.NewExamRegistry(memory.WithCodeGenerator(domain.GenerateExamCode, cfg.Exam.CodeAttempts)),
			memory.NewParticipationLedger(),
		)
		loader = memory.NewStaticQuestionBank(sampleQuestions())
		users = memory.NewUserDirectory(sampleUsers()...)
	}

	cacheTTL := config.Duration(cfg.Questions.CacheTTL, 10*time.Minute)
	opts := []app.Option{
		app.WithLogger(log),
		app.WithDefaultQuestionCount(cfg.Questions.DefaultCount),
	}
	var (
		questions app.QuestionBank
		presence  transport.Presence
	)
	if redisClient != nil {
		questions = infraredis.NewQuestionCache(redisClient, loader, cacheTTL, log)
		presence = infraredis.NewLobbyPresence(redisClient, redisTTL)
		opts = append(opts, app.WithEventBus(infraredis.NewEventBus(redisClient, log)))
	} else {
		questions = memory.NewQuestionCache(loader, cacheTTL)
		presence = memory.NewLobbyPresence()
	}

	service := app.NewExamService(store, questions, users, opts...)
	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL, 24*time.Hour), log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, presence, auth, log),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	go func() {
		log.WithField("port", finalPort).Info("starting exam service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleUsers and sampleQuestions back the in-memory mode; swap in Postgres for real data.
func sampleUsers() []domain.User {
	return []domain.User{
		{ID: 1, FullName: "Organizer"},
		{ID: 2, FullName: "Aisha Rahman"},
		{ID: 3, FullName: "Omar Haddad"},
		{ID: 4, FullName: "Sara Nasser"},
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            1,
			CategoryID:    1,
			CategoryName:  "Taharah",
			PromptAr:      "ما هي فرائض الوضوء؟",
			PromptEn:      "Which of these is an obligatory act of wudu?",
			OptionsAr:     []string{"غسل الوجه", "المضمضة", "السواك", "التسمية"},
			OptionsEn:     []string{"Washing the face", "Rinsing the mouth", "Using miswak", "Saying bismillah"},
			Difficulty:    "beginner",
			CorrectAnswer: 0,
		},
		{
			ID:            2,
			CategoryID:    1,
			CategoryName:  "Taharah",
			PromptAr:      "كم عدد مرات غسل اليدين في الوضوء المستحب؟",
			PromptEn:      "How many times is washing the hands recommended in wudu?",
			OptionsAr:     []string{"مرة", "مرتان", "ثلاث", "أربع"},
			OptionsEn:     []string{"Once", "Twice", "Three times", "Four times"},
			Difficulty:    "beginner",
			CorrectAnswer: 1,
		},
		{
			ID:            3,
			CategoryID:    2,
			CategoryName:  "Salah",
			PromptAr:      "كم ركعة في صلاة الصبح؟",
			PromptEn:      "How many rak'ahs are in the Fajr prayer?",
			OptionsAr:     []string{"ركعتان", "ثلاث", "أربع", "ركعة"},
			OptionsEn:     []string{"Two", "Three", "Four", "One"},
			Difficulty:    "beginner",
			CorrectAnswer: 0,
		},
		{
			ID:            4,
			CategoryID:    2,
			CategoryName:  "Salah",
			PromptAr:      "ما حكم صلاة الجمعة؟",
			PromptEn:      "What is the ruling on the Friday prayer?",
			OptionsAr:     []string{"واجب تخييري", "مستحب", "مكروه", "مباح"},
			OptionsEn:     []string{"Optionally obligatory", "Recommended", "Disliked", "Permissible"},
			Difficulty:    "intermediate",
			CorrectAnswer: 0,
		},
	}
}
