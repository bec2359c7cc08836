package rawstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

const contentSHA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" // sha256("hello")

func TestBuildRawObjectName(t *testing.T) {
	got := BuildRawObjectName("raw/dev", "sales", "2026-08-25", contentSHA, "csv")
	want := "raw/dev/sales/2026-08-25/" + contentSHA + ".csv"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := BuildRawObjectName("", "sales", "2026-08-25", contentSHA, ".csv"); got != "sales/2026-08-25/"+contentSHA+".csv" {
		t.Fatalf("empty prefix: got %q", got)
	}
}

func TestParseRawObjectName_RoundTrip(t *testing.T) {
	name := BuildRawObjectName("raw", "sales", "2026-08-25", contentSHA, ".csv")
	ref := ParseRawObjectName("raw", name)
	if ref == nil {
		t.Fatalf("expected parse to succeed")
	}
	if ref.Dataset != "sales" || ref.Day != "2026-08-25" || ref.SHA256 != contentSHA || ref.Ext != ".csv" {
		t.Fatalf("unexpected ref %+v", ref)
	}
}

func TestParseRawObjectName_RejectsForeignObjects(t *testing.T) {
	// wrong prefix, missing day, bad day shape, bad sha, too deep, empty
	names := []string{
		"other/sales/2026-08-25/" + contentSHA + ".csv",
		"raw/sales/" + contentSHA + ".csv",
		"raw/sales/08-25-2026/" + contentSHA + ".csv",
		"raw/sales/2026-08-25/nothex.csv",
		"raw/sales/2026-08-25/extra/" + contentSHA + ".csv",
		"",
	}
	for _, name := range names {
		if ref := ParseRawObjectName("raw", name); ref != nil {
			t.Fatalf("expected nil for %q, got %+v", name, ref)
		}
	}
}

func TestParseGSURI(t *testing.T) {
	bucket, object, ok := ParseGSURI("gs://my-bucket/raw/sales/f.csv")
	if !ok || bucket != "my-bucket" || object != "raw/sales/f.csv" {
		t.Fatalf("unexpected parse: %q %q %v", bucket, object, ok)
	}
	for _, bad := range []string{"http://x/y", "gs://bucketonly", "gs:///noname"} {
		if _, _, ok := ParseGSURI(bad); ok {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		StorageBackend:  "local",
		RawDataDir:      t.TempDir(),
		AllowedFileExts: []string{".csv"},
		MaxFileMB:       1,
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return path
}

func TestLocalStore_ContentAddressedAndImmutable(t *testing.T) {
	cfg := testSettings(t)
	store := NewLocalStore(cfg, testLogger(t))
	ctx := context.Background()

	src := writeTemp(t, "data.csv", "a,b\n1,2\n")
	obj, err := store.Store(ctx, "sales", src)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(obj.SHA256) != 64 {
		t.Fatalf("expected sha256 hex got %q", obj.SHA256)
	}
	if !strings.HasSuffix(obj.URI, obj.SHA256+".csv") {
		t.Fatalf("uri not content addressed: %q", obj.URI)
	}
	if !strings.Contains(obj.URI, filepath.Join(cfg.RawDataDir, "sales")) {
		t.Fatalf("uri not under dataset dir: %q", obj.URI)
	}

	// Storing the same content again lands on the same object.
	obj2, err := store.Store(ctx, "sales", src)
	if err != nil {
		t.Fatalf("re-store: %v", err)
	}
	if obj2.URI != obj.URI || obj2.SHA256 != obj.SHA256 {
		t.Fatalf("same bytes must map to same object: %+v vs %+v", obj, obj2)
	}

	local, cleanup, err := store.Fetch(ctx, obj.URI)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer cleanup()
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read fetched: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("fetched bytes differ: %q", data)
	}
}

func TestLocalStore_RejectsDisallowedExtension(t *testing.T) {
	store := NewLocalStore(testSettings(t), testLogger(t))
	src := writeTemp(t, "data.exe", "xx")
	_, err := store.Store(context.Background(), "sales", src)
	if !errors.Is(err, ErrExtNotAllowed) {
		t.Fatalf("expected ErrExtNotAllowed got %v", err)
	}
}

func TestLocalStore_RejectsOversizeFile(t *testing.T) {
	store := NewLocalStore(testSettings(t), testLogger(t))
	big := strings.Repeat("x", 2*1024*1024)
	src := writeTemp(t, "big.csv", big)
	_, err := store.Store(context.Background(), "sales", src)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge got %v", err)
	}
}
