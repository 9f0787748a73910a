// Package archive stores serialized reports on the local filesystem, one
// directory per commit:
//
//	<root>/<commit>/files.json
//	<root>/<commit>/chunks.txt (or chunks.txt.lz4)
//	<root>/<commit>/sessions.json
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

const (
	filesName      = "files.json"
	chunksName     = "chunks.txt"
	compressedName = chunksName + ".lz4"
	sessionsName   = "sessions.json"
	lockName       = ".lock"
)

// FileStore provides file-based storage for commit reports.
type FileStore struct {
	Root     string
	Compress bool // write chunks lz4-compressed
}

// Note: fileLock and acquireLock/release are defined in platform-specific files:
// - lock_unix.go for Unix systems (Linux, macOS, BSD)
// - lock_windows.go for Windows

// Factory opens the store described by cfg.
func Factory(cfg application.StorageConfig) (application.ReportStore, error) {
	root := cfg.Path
	if root == "" {
		root = application.DefaultStoragePath
	}
	return &FileStore{Root: root, Compress: cfg.Compress}, nil
}

func (s *FileStore) dir(commit string) (string, error) {
	if commit == "" || commit == "." || commit == ".." ||
		strings.ContainsAny(commit, `/\`) || strings.ContainsRune(commit, 0) {
		return "", fmt.Errorf("invalid commit %q", commit)
	}
	return filepath.Join(s.Root, commit), nil
}

// Load reads the report of commit. It returns domain.ErrReportNotFound when
// the commit has no stored report.
func (s *FileStore) Load(ctx context.Context, commit string) (*domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.dir(commit)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, filesName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, commit)
		}
		return nil, err
	}

	lock, err := acquireLock(filepath.Join(dir, lockName))
	if err != nil {
		return nil, err
	}
	defer lock.release()

	files, err := os.ReadFile(filepath.Join(dir, filesName)) // #nosec G304 -- path is derived from the store root
	if err != nil {
		return nil, err
	}
	chunks, err := readChunks(dir)
	if err != nil {
		return nil, err
	}
	sessions, err := os.ReadFile(filepath.Join(dir, sessionsName)) // #nosec G304 -- path is derived from the store root
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	report, err := domain.LoadReport(files, chunks, sessions)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", commit, err)
	}
	return report, nil
}

// Save replaces the report of commit.
// Uses file locking to prevent races with concurrent uploads.
func (s *FileStore) Save(ctx context.Context, commit string, report *domain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.dir(commit)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	lock, err := acquireLock(filepath.Join(dir, lockName))
	if err != nil {
		return err
	}
	defer lock.release()

	out, err := report.Serialize()
	if err != nil {
		return fmt.Errorf("serialize report %s: %w", commit, err)
	}

	chunks, name, stale := out.Chunks, chunksName, compressedName
	if s.Compress {
		chunks, err = compress(out.Chunks)
		if err != nil {
			return err
		}
		name, stale = compressedName, chunksName
	}
	// Chunks and sessions go first so files.json marks a complete report.
	if err := writeAtomic(filepath.Join(dir, name), chunks); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, stale)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, sessionsName), out.Sessions); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, filesName), out.Files)
}

// List returns the commits with a stored report, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var commits []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Root, e.Name(), filesName)); err == nil {
			commits = append(commits, e.Name())
		}
	}
	sort.Strings(commits)
	return commits, nil
}

func readChunks(dir string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, compressedName)) // #nosec G304 -- path is derived from the store root
	if err == nil {
		return decompress(raw)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	raw, err = os.ReadFile(filepath.Join(dir, chunksName)) // #nosec G304 -- path is derived from the store root
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return raw, err
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress chunks: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress chunks: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("decompress chunks: %w", err)
	}
	return out, nil
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
