package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"
	"quiz-arena/internal/infra/postgres"
	infraredis "quiz-arena/internal/infra/redis"
)

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.OpenDB(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	redisPub := infraredis.NewPublisher(redisClient)
	gateway := postgres.NewGateway(db)
	deps := app.SessionDeps{
		Publisher:  app.MultiPublisher{memory.NewBroker(), redisPub},
		Gateway:    gateway,
		Authorizer: memory.NewAuthorizer(true),
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute, "it")
	service := app.NewQuizService(sessionStore, quizRepo, deps, time.Hour)

	view, err := service.CreateSession(ctx, "owner", "quiz-1", domain.SessionSettings{
		Kind:             domain.KindStandard,
		DefaultTimeLimit: 30 * time.Second,
		Scoring:          domain.ScoringConfig{BasePoints: 1000, PerfectScoreBonus: 100},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	id := view.Session.ID

	updates, stop := redisPub.Subscribe(domain.SessionTopic(id))
	defer stop()
	waitSubscribed(t, ctx, redisClient, "arena:"+domain.SessionTopic(id))

	if _, err := service.Join(ctx, id, "u1", "Alice", false); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Join(ctx, id, "u2", "Bob", false); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := service.Start(ctx, id, "owner"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.NextQuestion(ctx, id, "owner"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, id, "u1", 0, []string{"o1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, id, "u2", 0, []string{"o2"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rec, err := gateway.LoadSession(ctx, id)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if rec.Session.Status != domain.StatusCompleted || rec.Session.WinnerID != "u2" {
		t.Fatalf("expected completed session won by bob, got %+v", rec.Session)
	}
	if len(rec.Submissions) != 2 || len(rec.Leaderboards) == 0 {
		t.Fatalf("expected persisted trail, got %d submissions and %d leaderboards", len(rec.Submissions), len(rec.Leaderboards))
	}
	lb := rec.Leaderboards[len(rec.Leaderboards)-1]
	if lb.Entries[0].ParticipantID != "u2" || lb.Entries[0].Score != 1100 {
		t.Fatalf("expected bob leading with 1100, got %+v", lb.Entries)
	}

	dup := app.SessionRecord{Session: rec.Session, Participants: rec.Participants, Submissions: rec.Submissions[:1]}
	if err := gateway.SaveSession(ctx, dup); err == nil {
		t.Fatalf("expected storage to reject a second submission for the same question")
	}
	again, err := gateway.LoadSession(ctx, id)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if len(again.Submissions) != 2 {
		t.Fatalf("rejected save must roll back, got %d submissions", len(again.Submissions))
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case env := <-updates:
			if env.Name == domain.EventSessionEnded {
				return
			}
		case <-deadline:
			t.Fatalf("session.ended never published over redis")
		}
	}
}

func waitSubscribed(t *testing.T, ctx context.Context, client *goredis.Client, channel string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		counts, err := client.PubSubNumSub(ctx, channel).Result()
		if err == nil && counts[channel] > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("subscription to %s never registered", channel)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
