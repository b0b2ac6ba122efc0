package cmd

import (
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/idempotency"
	"github.com/dukex/chatflow/pkg/lock"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"postgres://user@localhost/chatflow":   "postgres",
		"postgresql://user@localhost/chatflow": "postgresql",
		"file:///var/lib/chatflow":             "file",
		"./data":                               "file",
	}

	for url, expected := range tests {
		assert.Equal(t, expected, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence_File(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.Context(), slog.Default(), "file://"+t.TempDir())

	_, ok := p.(*file.Persistence)
	require.True(t, ok)
	require.NoError(t, p.HealthCheck(t.Context()))
}

func TestLocalFallbacks(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewRedisClient(""))
	assert.IsType(t, &lock.Local{}, NewLocker(nil, slog.Default()))
	assert.IsType(t, &idempotency.Memory{}, NewIdempotencyStore(nil))
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	_, ok := NewRegistry(slog.Default()).HealthCheck()
	assert.True(t, ok)
}

func TestNewRuntime_InProcess(t *testing.T) {
	t.Parallel()

	r := NewRuntime(t.Context(), slog.Default(), RuntimeConfig{
		ServiceName: "chatflow-test",
		DatabaseURL: t.TempDir(),
		EventBus:    "gochannel",
	})
	defer r.Close(t.Context())

	require.NotNil(t, r.Engine)
	require.NotNil(t, r.Scheduler)
	assert.Nil(t, r.Redis)
}
