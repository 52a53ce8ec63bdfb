package daemon

import (
	"testing"

	"github.com/harun/synmem/internal/config"
	"github.com/harun/synmem/internal/logger"
	"github.com/stretchr/testify/require"
)

// testConfig returns an in-memory configuration rooted in a temp directory
// with the metrics server on a free port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Engine = "memory"
	cfg.Embedding.Dimension = 64
	cfg.Embedding.CacheEntries = 100
	cfg.Ingest.Debounce = 20
	cfg.Metrics.Port = 0
	cfg.ResolvePaths()
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}
