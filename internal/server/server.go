package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/trivia/internal/answer"
	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/audit"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/game"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/player"
	"github.com/victornm/trivia/internal/postgres"
	"github.com/victornm/trivia/internal/question"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/stats"
	"github.com/victornm/trivia/internal/telemetry"
)

const (
	AuditSinkRedis = "redis"
	AuditSinkLog   = "log"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres postgres.Config

	Game struct {
		// QuestionsPerSession is the number of answers that completes a session.
		QuestionsPerSession int
	}

	Cache struct {
		QuestionTTL time.Duration
	}

	Audit struct {
		// Sink is "redis" (a capped stream) or "log".
		Sink   string
		MaxLen int64
	}

	Event struct {
		PoolSize int
		Timeout  time.Duration
	}

	Log struct {
		Level string
		// Format is "json" or "text".
		Format string
	}
}

// DefaultConfig holds the values used when neither the file nor the
// environment sets them.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Redis.Addrs = []string{"localhost:6379"}
	c.Redis.Prefix = "trivia"
	c.Postgres = postgres.Config{Addr: "localhost:5432", User: "trivia", Pass: "trivia", Name: "trivia", MaxConns: 16}
	c.Game.QuestionsPerSession = domain.QuestionsPerSession
	c.Cache.QuestionTTL = 30 * time.Minute
	c.Audit.Sink = AuditSinkRedis
	c.Audit.MaxLen = 100_000
	c.Event.PoolSize = 100
	c.Event.Timeout = 5 * time.Second
	c.Log.Level = "info"
	c.Log.Format = "json"
	return c
}

// Validate rejects settings the schema cannot hold. Sessions and leaderboard
// scores are bounded by domain.QuestionsPerSession in the database.
func (c Config) Validate() error {
	if n := c.Game.QuestionsPerSession; n < 1 || n > domain.QuestionsPerSession {
		return fmt.Errorf("game.questionspersession must be between 1 and %d, got %d", domain.QuestionsPerSession, n)
	}

	switch c.Audit.Sink {
	case AuditSinkRedis, AuditSinkLog:
	default:
		return fmt.Errorf("audit.sink must be %q or %q, got %q", AuditSinkRedis, AuditSinkLog, c.Audit.Sink)
	}

	return nil
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		player      *player.Service
		session     *session.Service
		questions   question.Store
		assigner    *question.Assigner
		answer      *answer.Service
		finalizer   *game.Finalizer
		leaderboard *leaderboard.Service
		notifier    *leaderboard.Notifier
		stats       *stats.Service
		auditLog    *audit.RedisStreamSink
		engine      *game.Engine
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(ctx context.Context, c Config) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	s := &Server{c: c}

	s.eb = event.NewBus(event.WithPoolSize(c.Event.PoolSize), event.WithTimeout(c.Event.Timeout))

	if err := s.initInfra(ctx); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra(ctx context.Context) error {
	if err := s.initRedis(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	db, err := postgres.Connect(ctx, s.c.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	s.infra.postgres = db

	return nil
}

func (s *Server) initRedis(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.InstrumentRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initService() {
	db, rc, prefix, target := s.infra.postgres, s.infra.redis, s.c.Redis.Prefix, s.c.Game.QuestionsPerSession

	s.service.player = player.NewService(player.Config{DB: db})
	s.service.session = session.NewService(session.Config{DB: db})

	s.service.questions = question.NewCachedStore(question.CacheConfig{
		Redis:   rc,
		Backing: question.NewPostgresStore(db),
		Prefix:  prefix,
		TTL:     s.c.Cache.QuestionTTL,
	})
	s.service.assigner = question.NewAssigner(question.AssignerConfig{DB: db})

	s.service.answer = answer.NewService(answer.Config{
		DB:        db,
		Questions: s.service.questions,
		Target:    target,
	})
	s.service.finalizer = game.NewFinalizer(game.FinalizerConfig{DB: db, Target: target})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		DB:       db,
		MaxScore: target,
	})
	s.service.notifier = leaderboard.NewNotifier(leaderboard.NotifierConfig{
		EventBus: s.eb,
		Board:    s.service.leaderboard,
		Redis:    rc,
		Prefix:   prefix,
	})

	s.service.stats = stats.NewService(stats.Config{DB: db, Target: target})

	s.service.auditLog = audit.NewRedisStreamSink(audit.StreamConfig{
		Redis:  rc,
		Prefix: prefix,
		MaxLen: s.c.Audit.MaxLen,
	})
	var sink audit.Sink = s.service.auditLog
	if s.c.Audit.Sink == AuditSinkLog {
		sink = audit.NewLogSink(slog.Default())
	}
	audit.NewRecorder(audit.RecorderConfig{EventBus: s.eb, Sink: sink})

	s.service.engine = game.NewEngine(game.Config{
		EventBus:    s.eb,
		Players:     s.service.player,
		Sessions:    s.service.session,
		Assigner:    s.service.assigner,
		Questions:   s.service.questions,
		Answers:     s.service.answer,
		Finalizer:   s.service.finalizer,
		Leaderboard: s.service.leaderboard,
		Stats:       s.service.stats,
		Target:      target,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.ContextWithFallback = true
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.GET("/healthz", s.healthz)
	e.Use(gin.Recovery(), accessLog())

	api.New(api.Config{
		Router:  e,
		Game:    s.service.engine,
		Players: s.service.player,
		Stats:   s.service.stats,
		Audit:   s.service.auditLog,
		Feed:    s.service.notifier,
		Redis:   s.infra.redis,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(slog.Default()))
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
}

// healthz pings both stores and mirrors the result on the gRPC health service.
func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error { return s.infra.postgres.Ping(ctx) })
	eg.Go(func() error { return s.infra.redis.Ping(ctx).Err() })

	if err := eg.Wait(); err != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves HTTP and gRPC until ctx is cancelled or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		s.Shutdown()
		return nil
	})

	return eg.Wait()
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Drain in-flight audit and leaderboard handlers before closing the stores.
	s.eb.Stop()
	s.service.notifier.Stop()

	s.infra.postgres.Close()
	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
