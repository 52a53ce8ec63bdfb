package logger

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "synmem.log")
		w, err := NewRotatingWriter(path, RotationPolicy{})
		require.NoError(t, err)
		defer w.Close()

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "nested", "synmem.log")
		w, err := NewRotatingWriter(path, RotationPolicy{})
		require.NoError(t, err)
		defer w.Close()

		_, err = os.Stat(filepath.Dir(path))
		assert.NoError(t, err)
	})

	t.Run("appends to existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "synmem.log")
		require.NoError(t, os.WriteFile(path, []byte("before\n"), 0o644))

		w, err := NewRotatingWriter(path, RotationPolicy{})
		require.NoError(t, err)
		_, err = w.Write([]byte("after\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "before\nafter\n", string(content))
	})
}

func TestRotatingWriter_RotatesAtLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synmem.log")

	w, err := NewRotatingWriter(path, RotationPolicy{MaxBytes: 100})
	require.NoError(t, err)

	first := bytes.Repeat([]byte("a"), 80)
	second := bytes.Repeat([]byte("b"), 80)
	_, err = w.Write(first)
	require.NoError(t, err)
	_, err = w.Write(second)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	archived, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	require.Len(t, archived, 1)

	old, err := os.ReadFile(archived[0])
	require.NoError(t, err)
	assert.Equal(t, first, old)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, second, current)
}

func TestRotatingWriter_RapidRotationsKeepEveryArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synmem.log")
	w, err := NewRotatingWriter(path, RotationPolicy{MaxBytes: 10})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = w.Write(bytes.Repeat([]byte("z"), 8))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	archived, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, archived, 3)
}

func TestRotatingWriter_Unbounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synmem.log")
	w, err := NewRotatingWriter(path, RotationPolicy{})
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, err = w.Write(bytes.Repeat([]byte("x"), 1000))
		require.NoError(t, err)
	}

	archived, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synmem.log")
	w, err := NewRotatingWriter(path, RotationPolicy{MaxBytes: 10 << 20})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, content, 8*50*5)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "synmem.log"), RotationPolicy{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriter_CompressesArchives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synmem.log")
	w, err := NewRotatingWriter(path, RotationPolicy{MaxBytes: 16, Compress: true})
	require.NoError(t, err)

	_, err = w.Write([]byte("first entry 1234"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	gz, err := filepath.Glob(path + ".*.gz")
	require.NoError(t, err)
	require.Len(t, gz, 1)

	f, err := os.Open(gz[0])
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "first entry 1234", string(data))

	plain, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, plain, 1, "uncompressed archive should be removed")
}

func TestGzipFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.log")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	require.NoError(t, gzipFile(path))

	_, err := os.Stat(path + ".gz")
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_PrunesOldArchives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synmem.log")

	stale := path + ".20200101T120000.000000000"
	staleGz := path + ".20200102T120000.000000000.gz"
	fresh := path + ".20990101T120000.000000000"
	for _, f := range []string{stale, staleGz, fresh} {
		require.NoError(t, os.WriteFile(f, []byte("old log"), 0o644))
	}
	old := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(staleGz, old, old))

	w, err := NewRotatingWriter(path, RotationPolicy{MaxAge: 7 * 24 * time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(staleGz)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
