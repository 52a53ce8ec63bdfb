package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const archiveTimeFormat = "20060102T150405.000000000"

// RotationPolicy bounds the size of the active log file and the lifetime of
// its archives. Zero values disable the matching limit.
type RotationPolicy struct {
	MaxBytes int64
	MaxAge   time.Duration
	Compress bool
}

// RotatingWriter appends to a log file and moves it aside once it would grow
// past the policy limit. Archives are optionally gzipped and pruned by age in
// the background. It is safe for concurrent use.
type RotatingWriter struct {
	path   string
	policy RotationPolicy

	mu   sync.Mutex
	file *os.File
	size int64

	background sync.WaitGroup
}

// NewRotatingWriter opens (or creates) path for appending.
func NewRotatingWriter(path string, policy RotationPolicy) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &RotatingWriter{path: path, policy: policy}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.spawn(w.prune)
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	// An entry larger than the limit still goes into a fresh file on its own.
	if w.policy.MaxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.policy.MaxBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the active file and waits for pending compression and pruning.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()
	w.background.Wait()
	return err
}

func (w *RotatingWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	archive := w.path + "." + time.Now().Format(archiveTimeFormat)
	for i := 1; fileExists(archive) || fileExists(archive+".gz"); i++ {
		archive = fmt.Sprintf("%s.%s-%d", w.path, time.Now().Format(archiveTimeFormat), i)
	}
	if err := os.Rename(w.path, archive); err != nil {
		return fmt.Errorf("failed to archive log file: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}

	if w.policy.Compress {
		w.spawn(func() { _ = gzipFile(archive) })
	}
	w.spawn(w.prune)
	return nil
}

func (w *RotatingWriter) spawn(fn func()) {
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		fn()
	}()
}

// archives lists rotated files of this log, compressed or not.
func (w *RotatingWriter) archives() []string {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return nil
	}
	out := matches[:0]
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			out = append(out, m)
		}
	}
	return out
}

// prune removes archives whose modification time is older than MaxAge.
func (w *RotatingWriter) prune() {
	if w.policy.MaxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.policy.MaxAge)
	for _, path := range w.archives() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

// gzipFile replaces path with path.gz. The uncompressed file is kept when
// compression fails.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := path + ".gz.tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	_, copyErr := io.Copy(zw, src)
	closeErr := zw.Close()
	fileErr := dst.Close()
	if err := firstErr(copyErr, closeErr, fileErr); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path+".gz"); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Remove(path)
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
