package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/pkg/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsServer(t *testing.T) {
	observability.EnsureRegistered()
	stats := func(context.Context) (memory.Stats, error) {
		return memory.Stats{Engine: "memory", Count: 7, Dimension: 64}, nil
	}

	s := NewMetricsServer("127.0.0.1", 0, stats, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	base := "http://" + s.Addr()

	code, body := get(t, base+"/health")
	assert.Equal(t, http.StatusOK, code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(7), health["memories"])
	assert.Equal(t, "memory", health["engine"])

	code, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "memory_entries_total")

	resp, err := http.Post(base+"/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsServer_HealthDegraded(t *testing.T) {
	stats := func(context.Context) (memory.Stats, error) {
		return memory.Stats{}, errors.New("database is locked")
	}

	s := NewMetricsServer("127.0.0.1", 0, stats, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	code, body := get(t, "http://"+s.Addr()+"/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "degraded")
	assert.Contains(t, body, "database is locked")
}

func TestMetricsServer_AddressInUse(t *testing.T) {
	first := NewMetricsServer("127.0.0.1", 0, nil, zerolog.Nop())
	require.NoError(t, first.Start())
	defer first.Stop()

	second := &MetricsServer{addr: first.Addr(), logger: zerolog.Nop()}
	assert.Error(t, second.Start())
	assert.NoError(t, second.Stop())
}
