// Package pgtest starts a disposable Postgres for integration tests. One
// container is shared by the test binary; every test gets its own migrated
// database.
package pgtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/postgres"
)

const (
	user = "trivia"
	pass = "trivia"
)

var (
	once    sync.Once
	addr    string
	bootErr error
	seq     atomic.Int64
)

// NewPool returns a pool connected to a fresh, migrated database. The test is
// skipped when Docker is not available.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	once.Do(func() { addr, bootErr = start(ctx) })
	if bootErr != nil {
		if strings.Contains(bootErr.Error(), "Docker") || strings.Contains(bootErr.Error(), "docker") {
			t.Skipf("docker not available: %v", bootErr)
		}
		t.Fatalf("start postgres: %v", bootErr)
	}

	name := fmt.Sprintf("trivia_%d_%d", time.Now().UnixNano()%1e6, seq.Add(1))
	admin, err := postgres.Connect(ctx, postgres.Config{Addr: addr, User: user, Pass: pass, Name: "postgres"})
	if err != nil {
		t.Fatalf("connect admin: %v", err)
	}
	defer admin.Close()

	if _, err := admin.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("create database: %v", err)
	}

	c := postgres.Config{Addr: addr, User: user, Pass: pass, Name: name, MaxConns: 32}
	if err := postgres.Migrate(ctx, c.DSN()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := postgres.Connect(ctx, c)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)

	return db
}

func start(ctx context.Context) (string, error) {
	if _, err := tc.NewDockerProvider(); err != nil {
		return "", fmt.Errorf("docker provider: %w", err)
	}

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": user, "POSTGRES_PASSWORD": pass, "POSTGRES_DB": "postgres"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return "", fmt.Errorf("port: %w", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

// SeedQuestions inserts n questions with ids 1..n whose correct answer is
// given by correct(id).
func SeedQuestions(t *testing.T, db *pgxpool.Pool, n int, correct func(id int64) domain.Letter) {
	t.Helper()

	for id := int64(1); id <= int64(n); id++ {
		_, err := db.Exec(context.Background(), `
INSERT INTO questions (question_id, question_text, answer_a, answer_b, answer_c, answer_d, correct_answer)
VALUES ($1, $2, 'A', 'B', 'C', 'D', $3);`,
			id, fmt.Sprintf("Question %d?", id), string(correct(id)))
		if err != nil {
			t.Fatalf("seed question %d: %v", id, err)
		}
	}
}

// SeedPlayer inserts a player and returns its id.
func SeedPlayer(t *testing.T, db *pgxpool.Pool, username string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(context.Background(),
		`INSERT INTO players (username, email) VALUES ($1, $2) RETURNING player_id;`,
		username, username+"@example.com").Scan(&id)
	if err != nil {
		t.Fatalf("seed player %s: %v", username, err)
	}

	return id
}

// AlwaysA is a correct-answer function for SeedQuestions.
func AlwaysA(int64) domain.Letter { return domain.LetterA }
