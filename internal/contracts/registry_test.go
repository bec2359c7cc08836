package contracts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestRegistry_LoadReturnsContractAndFileIdentity(t *testing.T) {
	dir := t.TempDir()
	doc := "dataset: sensor_readings\ncolumns:\n  device_id:\n    type: string\n    required: true\n  reading:\n    type: number\n"
	if err := os.WriteFile(filepath.Join(dir, "sensor_readings.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write contract: %v", err)
	}

	reg := NewRegistry(dir, testLogger(t))
	res, err := reg.Load("Sensor_Readings")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Contract.Dataset != "sensor_readings" {
		t.Fatalf("unexpected dataset %q", res.Contract.Dataset)
	}
	if res.SHA256 == "" || len(res.SHA256) != 64 {
		t.Fatalf("expected sha256 hex, got %q", res.SHA256)
	}
	if filepath.Base(res.Path) != "sensor_readings.yaml" {
		t.Fatalf("unexpected path %q", res.Path)
	}
}

func TestRegistry_MissingContractIsErrNotFound(t *testing.T) {
	reg := NewRegistry(t.TempDir(), testLogger(t))
	_, err := reg.Load("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestRegistry_DeclaredDatasetMustMatchFilename(t *testing.T) {
	dir := t.TempDir()
	doc := "dataset: other_name\ncolumns:\n  a:\n    type: string\n"
	if err := os.WriteFile(filepath.Join(dir, "sensor_readings.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write contract: %v", err)
	}
	reg := NewRegistry(dir, testLogger(t))
	if _, err := reg.Load("sensor_readings"); !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected ErrInvalidContract got %v", err)
	}
}
