package rawstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

var (
	// ErrExtNotAllowed means the file extension is not on the intake allow-list.
	ErrExtNotAllowed = errors.New("file extension not allowed")
	// ErrFileTooLarge means the file exceeds the configured size cap.
	ErrFileTooLarge = errors.New("file too large")
)

// StoredObject describes a raw artifact after it entered the landing zone.
type StoredObject struct {
	SHA256     string
	URI        string
	Ext        string
	Filename   string
	Generation *int64
}

// Store is the immutable raw landing zone. Objects are content-addressed by
// sha256 and never overwritten.
type Store interface {
	// Store copies a local file into the landing zone under
	// <prefix>/<dataset>/<YYYY-MM-DD>/<sha256><ext>.
	Store(ctx context.Context, dataset, srcPath string) (*StoredObject, error)
	// Fetch materializes the object behind uri as a local file. cleanup must
	// be called when done; for already-local objects it is a no-op.
	Fetch(ctx context.Context, uri string) (localPath string, cleanup func(), err error)
}

// New picks the backend from settings: "gcs" or "local".
func New(cfg *config.Settings, baseLog *logger.Logger) (Store, error) {
	switch cfg.StorageBackend {
	case "gcs":
		return NewGCSStore(cfg, baseLog)
	case "local":
		return NewLocalStore(cfg, baseLog), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checkIntake enforces the extension allow-list and size cap shared by both
// backends. Returns the normalized extension.
func checkIntake(cfg *config.Settings, srcPath string) (string, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(srcPath))
	allowed := false
	for _, a := range cfg.AllowedFileExts {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("%w: %q (allowed: %v)", ErrExtNotAllowed, ext, cfg.AllowedFileExts)
	}
	maxBytes := int64(cfg.MaxFileMB) * 1024 * 1024
	if info.Size() > maxBytes {
		return "", fmt.Errorf("%w: > %d MB", ErrFileTooLarge, cfg.MaxFileMB)
	}
	return ext, nil
}
