package rawstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

// LocalStore keeps the landing zone on the local filesystem under
// cfg.RawDataDir. Useful for development and tests.
type LocalStore struct {
	root string
	cfg  *config.Settings
	log  *logger.Logger
}

func NewLocalStore(cfg *config.Settings, baseLog *logger.Logger) *LocalStore {
	return &LocalStore{
		root: cfg.RawDataDir,
		cfg:  cfg,
		log:  baseLog.With("component", "LocalRawStore"),
	}
}

func (s *LocalStore) Store(ctx context.Context, dataset, srcPath string) (*StoredObject, error) {
	ext, err := checkIntake(s.cfg, srcPath)
	if err != nil {
		return nil, err
	}
	sha, err := sha256File(srcPath)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", srcPath, err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(s.root, dataset, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dst := filepath.Join(dir, sha+ext)

	// Content-addressed and immutable: an existing object is already this file.
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		if err := copyFile(srcPath, dst); err != nil {
			return nil, fmt.Errorf("copy into landing zone: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	return &StoredObject{
		SHA256:   sha,
		URI:      dst,
		Ext:      ext,
		Filename: filepath.Base(srcPath),
	}, nil
}

func (s *LocalStore) Fetch(ctx context.Context, uri string) (string, func(), error) {
	if _, err := os.Stat(uri); err != nil {
		return "", nil, fmt.Errorf("raw object missing: %w", err)
	}
	return uri, func() {}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
