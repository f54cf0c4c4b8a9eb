package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/config"
	"github.com/victornm/trivia/internal/domain"
)

func TestConfig_Load(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http:
  port: 8081
postgres:
  addr: db:5432
cache:
  questionttl: 10m
audit:
  sink: log
`), 0o600))

	t.Setenv("REDIS_PREFIX", "staging")

	c := DefaultConfig()
	require.NoError(t, config.Load(file, &c))

	assert.Equal(t, int32(8081), c.HTTP.Port)
	assert.Equal(t, int32(9090), c.GRPC.Port)
	assert.Equal(t, "db:5432", c.Postgres.Addr)
	assert.Equal(t, "trivia", c.Postgres.User)
	assert.Equal(t, 10*time.Minute, c.Cache.QuestionTTL)
	assert.Equal(t, AuditSinkLog, c.Audit.Sink)
	assert.Equal(t, "staging", c.Redis.Prefix)
	assert.Equal(t, domain.QuestionsPerSession, c.Game.QuestionsPerSession)
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]struct {
		arrange func(c *Config)
		wantErr bool
	}{
		"should accept the defaults": {
			arrange: func(*Config) {},
		},
		"should accept a shorter session": {
			arrange: func(c *Config) { c.Game.QuestionsPerSession = 5 },
		},
		"should reject an empty session": {
			arrange: func(c *Config) { c.Game.QuestionsPerSession = 0 },
			wantErr: true,
		},
		"should reject a session longer than the schema allows": {
			arrange: func(c *Config) { c.Game.QuestionsPerSession = domain.QuestionsPerSession + 1 },
			wantErr: true,
		},
		"should reject an unknown audit sink": {
			arrange: func(c *Config) { c.Audit.Sink = "kafka" },
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			tt.arrange(&c)

			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInit_RejectsInvalidConfig(t *testing.T) {
	c := DefaultConfig()
	c.Game.QuestionsPerSession = 25

	_, err := Init(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "questionspersession")
}

func TestAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(accessLog())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := map[string]struct {
		header string
		assert func(t *testing.T, got string)
	}{
		"should generate a request id": {
			assert: func(t *testing.T, got string) {
				assert.Len(t, got, 36)
			},
		},
		"should keep the caller's request id": {
			header: "req-1",
			assert: func(t *testing.T, got string) {
				assert.Equal(t, "req-1", got)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(headerRequestID, tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			tt.assert(t, rec.Header().Get(headerRequestID))
		})
	}
}
