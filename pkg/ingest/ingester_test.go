package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/synmem/pkg/embedding"
	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/query"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStorer stores params in memory and can fail on demand.
type recordingStorer struct {
	mu     sync.Mutex
	stored []query.StoreParams
	err    error
}

func (r *recordingStorer) StoreMemory(_ context.Context, params query.StoreParams) (*memory.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.stored = append(r.stored, params)
	return params.Memory(), nil
}

func (r *recordingStorer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored)
}

func writeRecord(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newTestIngester(t *testing.T, storer Storer) (*Ingester, string) {
	t.Helper()
	dir := t.TempDir()
	in, err := New(Config{Dir: dir, Debounce: 20 * time.Millisecond, Logger: zerolog.Nop()}, storer)
	require.NoError(t, err)
	return in, dir
}

func TestNew_CreatesDirectories(t *testing.T) {
	_, dir := newTestIngester(t, &recordingStorer{})
	assert.DirExists(t, filepath.Join(dir, "done"))
	assert.DirExists(t, filepath.Join(dir, "failed"))

	_, err := New(Config{}, &recordingStorer{})
	assert.Error(t, err)
}

func TestProcessPending(t *testing.T) {
	storer := &recordingStorer{}
	in, dir := newTestIngester(t, storer)

	writeRecord(t, dir, "001.json", `{"content": "alpha widget", "source": "https://example.com/a", "tags": ["shop"], "metadata": {"selector": "#main"}}`)
	writeRecord(t, dir, "002.json", `{"content": "", "source": "https://example.com/b"}`)
	writeRecord(t, dir, "003.json", `{not json`)
	writeRecord(t, dir, "004.json", `{"content": "x", "source": "s", "unexpected": 1}`)
	writeRecord(t, dir, "notes.txt", `ignored`)

	sum, err := in.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Stored: 1, Rejected: 3}, sum)

	require.Equal(t, 1, storer.count())
	assert.Equal(t, "alpha widget", storer.stored[0].Content)
	assert.Equal(t, []string{"shop"}, storer.stored[0].Tags)
	assert.Equal(t, map[string]string{"selector": "#main"}, storer.stored[0].Metadata)

	assert.FileExists(t, filepath.Join(dir, "done", "001.json"))
	for _, name := range []string{"002.json", "003.json", "004.json"} {
		assert.FileExists(t, filepath.Join(dir, "failed", name))
		assert.FileExists(t, filepath.Join(dir, "failed", name+".error"))
		assert.NoFileExists(t, filepath.Join(dir, name))
	}
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestProcessPending_TransientFailureDefers(t *testing.T) {
	storer := &recordingStorer{err: &query.Error{Op: "store_memory", Kind: query.KindProviderUnavailable, Err: embedding.ErrProviderUnavailable}}
	in, dir := newTestIngester(t, storer)
	writeRecord(t, dir, "a.json", `{"content": "retry me", "source": "s"}`)

	sum, err := in.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Deferred: 1}, sum)
	assert.FileExists(t, filepath.Join(dir, "a.json"))

	storer.mu.Lock()
	storer.err = nil
	storer.mu.Unlock()

	sum, err = in.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Stored: 1}, sum)
	assert.FileExists(t, filepath.Join(dir, "done", "a.json"))
}

func TestProcessPending_PermanentStoreFailureRejects(t *testing.T) {
	storer := &recordingStorer{err: &query.Error{Op: "store_memory", Kind: query.KindInputTooLong, Err: embedding.ErrInputTooLong}}
	in, dir := newTestIngester(t, storer)
	writeRecord(t, dir, "long.json", `{"content": "too long for the model", "source": "s"}`)

	sum, err := in.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Rejected: 1}, sum)
	reason, err := os.ReadFile(filepath.Join(dir, "failed", "long.json.error"))
	require.NoError(t, err)
	assert.Contains(t, string(reason), "input_too_long")
}

func TestStart_WatchesSpool(t *testing.T) {
	storer := &recordingStorer{}
	in, dir := newTestIngester(t, storer)
	writeRecord(t, dir, "existing.json", `{"content": "already here", "source": "s"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, in.Start(ctx))
	defer in.Stop()

	assert.Equal(t, 1, storer.count(), "pending files are processed on start")
	assert.Error(t, in.Start(ctx))

	for i := 0; i < 3; i++ {
		writeRecord(t, dir, fmt.Sprintf("new-%d.json", i), fmt.Sprintf(`{"content": "fresh %d", "source": "s"}`, i))
	}

	assert.Eventually(t, func() bool { return storer.count() == 4 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, in.Stop())
	require.NoError(t, in.Stop())
}

func TestRecordValidator(t *testing.T) {
	v, err := NewRecordValidator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{"minimal", `{"content": "c", "source": "s"}`, true},
		{"full", `{"id": "x", "content": "c", "source": "s", "title": "t", "content_type": "table", "tags": ["a", "b"], "metadata": {"k": "v"}}`, true},
		{"missing source", `{"content": "c"}`, false},
		{"whitespace content", `{"content": "   ", "source": "s"}`, false},
		{"duplicate tags", `{"content": "c", "source": "s", "tags": ["a", "a"]}`, false},
		{"non-string metadata", `{"content": "c", "source": "s", "metadata": {"k": 1}}`, false},
		{"not an object", `["c"]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := v.Parse([]byte(tt.body))
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, "c", params.Content)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}
