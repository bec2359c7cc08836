package rawstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

// GCSStore keeps the landing zone in a GCS bucket. Every stored object
// carries its generation so duplicate finalize events can be deduplicated
// downstream.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	cfg    *config.Settings
	log    *logger.Logger
}

func NewGCSStore(cfg *config.Settings, baseLog *logger.Logger) (*GCSStore, error) {
	if cfg.RawGCSBucket == "" {
		return nil, fmt.Errorf("missing env var RAW_GCS_BUCKET")
	}
	opts := clientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: cfg.RawGCSBucket,
		prefix: cfg.RawGCSPrefix,
		cfg:    cfg,
		log:    baseLog.With("component", "GCSRawStore"),
	}, nil
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

func (s *GCSStore) Store(ctx context.Context, dataset, srcPath string) (*StoredObject, error) {
	ext, err := checkIntake(s.cfg, srcPath)
	if err != nil {
		return nil, err
	}
	sha, err := sha256File(srcPath)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", srcPath, err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	objectName := BuildRawObjectName(s.prefix, dataset, day, sha, ext)
	obj := s.client.Bucket(s.bucket).Object(objectName)

	wctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	attrs, err := obj.Attrs(wctx)
	if err == nil {
		// Content-addressed: the object already holds these exact bytes.
		gen := attrs.Generation
		return &StoredObject{
			SHA256:     sha,
			URI:        fmt.Sprintf("gs://%s/%s", s.bucket, objectName),
			Ext:        ext,
			Filename:   filepath.Base(srcPath),
			Generation: &gen,
		}, nil
	}
	if err != storage.ErrObjectNotExist {
		return nil, fmt.Errorf("stat gs://%s/%s: %w", s.bucket, objectName, err)
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Precondition guards against a concurrent uploader of the same content.
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(wctx)
	w.ContentType = "text/csv"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	attrs, err = obj.Attrs(wctx)
	if err != nil {
		return nil, fmt.Errorf("stat after upload: %w", err)
	}
	gen := attrs.Generation
	return &StoredObject{
		SHA256:     sha,
		URI:        fmt.Sprintf("gs://%s/%s", s.bucket, objectName),
		Ext:        ext,
		Filename:   filepath.Base(srcPath),
		Generation: &gen,
	}, nil
}

func (s *GCSStore) Fetch(ctx context.Context, uri string) (string, func(), error) {
	bucket, object, ok := ParseGSURI(uri)
	if !ok {
		return "", nil, fmt.Errorf("not a gs:// uri: %q", uri)
	}

	rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := s.client.Bucket(bucket).Object(object).NewReader(rctx)
	if err != nil {
		return "", nil, fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "eventpulse-raw-*"+filepath.Ext(object))
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("download gs://%s/%s: %w", bucket, object, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}
