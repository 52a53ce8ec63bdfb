package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/synmem/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	d, err := New(testConfig(t), testLogger(t))
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	d := createTestDaemon(t)
	defer d.release()

	assert.NotNil(t, d.GetConfig())
	assert.NotNil(t, d.GetLogger())
	assert.NotNil(t, d.GetService())
	assert.NotNil(t, d.GetIngester())
	assert.NotNil(t, d.GetMaintenance())
	assert.NotNil(t, d.GetMetricsServer())
	assert.NotNil(t, d.GetLifecycle())
}

func TestNew_OptionalModulesDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingest.Enabled = false
	cfg.Maintenance.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	defer d.release()

	assert.Nil(t, d.GetIngester())
	assert.Nil(t, d.GetMaintenance())
	assert.Nil(t, d.GetMetricsServer())
	assert.NoFileExists(t, cfg.Audit.File)
}

func TestNew_TracingReinitializesAfterRelease(t *testing.T) {
	for i := 0; i < 2; i++ {
		cfg := testConfig(t)
		cfg.Tracing.Enabled = true

		d, err := New(cfg, testLogger(t))
		require.NoError(t, err)
		assert.True(t, d.tracingEnabled, "run %d", i)
		d.release()
		assert.False(t, d.tracingEnabled)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Schedule = "whenever"

	_, err := New(cfg, testLogger(t))
	assert.Error(t, err)
}

func TestDaemonStartStop(t *testing.T) {
	d := createTestDaemon(t)
	cfg := d.GetConfig()

	require.NoError(t, d.Start())
	assert.True(t, d.Status().Running)
	assert.FileExists(t, d.GetLifecycle().PIDFile())

	assert.Error(t, d.Start(), "second start should fail")

	ctx := context.Background()
	_, err := d.GetService().StoreMemory(ctx, query.StoreParams{
		ID:      "direct",
		Content: "pricing table for the enterprise plan",
		Source:  "https://example.com/pricing",
	})
	require.NoError(t, err)

	record := `{"id": "spooled", "content": "shipping takes three business days", "source": "https://example.com/faq"}`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Ingest.Dir, "faq.json"), []byte(record), 0644))

	assert.Eventually(t, func() bool {
		_, err := d.GetService().GetMemory(ctx, "spooled")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + d.GetMetricsServer().Addr() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(2), health["memories"])

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.NoFileExists(t, d.GetLifecycle().PIDFile())
	assert.Nil(t, d.GetService())

	auditLog, err := os.ReadFile(cfg.Audit.File)
	require.NoError(t, err)
	assert.Contains(t, string(auditLog), `"memory_id":"direct"`)
	assert.Contains(t, string(auditLog), `"memory_id":"spooled"`)

	assert.Error(t, d.Stop(), "second stop should fail")
}

func TestDaemonStatus(t *testing.T) {
	d := createTestDaemon(t)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, d.Start())
	defer d.Stop()

	time.Sleep(10 * time.Millisecond)
	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.False(t, status.StartTime.IsZero())
}

func TestDaemonWaitReturnsAfterStop(t *testing.T) {
	d := createTestDaemon(t)
	require.NoError(t, d.Start())

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	require.NoError(t, d.Stop())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}
