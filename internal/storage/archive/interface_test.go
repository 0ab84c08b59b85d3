package archive

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/newthinker/btviz/internal/config"
	"github.com/newthinker/btviz/internal/core"
)

func TestNew(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	s, err := New(config.ExportConfig{Type: "localfs", Path: dir})
	if err != nil {
		t.Fatalf("New localfs: %v", err)
	}
	if _, ok := s.(*LocalFS); !ok {
		t.Errorf("expected *LocalFS, got %T", s)
	}

	s, err = New(config.ExportConfig{Type: "s3", S3: config.S3Config{Bucket: "reports", Region: "us-east-1", Prefix: "btviz/"}})
	if err != nil {
		t.Fatalf("New s3: %v", err)
	}
	if got := s.Location("QQQ/chart.html"); got != "s3://reports/btviz/QQQ/chart.html" {
		t.Errorf("unexpected location %s", got)
	}

	_, err = New(config.ExportConfig{Type: "ftp"})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected config error, got %v", err)
	}
}
