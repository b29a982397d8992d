package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/storage"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"", false, ""},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:443", true, "https://minio.internal:443"},
		{"http://localhost:9000", true, "http://localhost:9000"},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.in, tt.ssl); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}

// TestBackendIntegration runs against a live MinIO/S3 when TEST_S3_ENDPOINT is set.
func TestBackendIntegration(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}
	logging.InitNop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := NewBackend(ctx, BackendConfig{
		Endpoint:  endpoint,
		Bucket:    envOr("TEST_S3_BUCKET", "folderserve-test"),
		AccessKey: envOr("TEST_S3_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("TEST_S3_SECRET_KEY", "minioadmin"),
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	key := "test/" + time.Now().Format("20060102150405.000000000") + ".json"
	body := `{"":{"is_dir":true}}`

	if _, _, err := b.GetObject(ctx, key, 0, 0); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing key err = %v, want ErrNotFound", err)
	}
	if err := b.PutObject(ctx, key, strings.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	defer b.DeleteObject(ctx, key)

	rc, _, err := b.GetObject(ctx, key, 0, 0)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != body {
		t.Errorf("got %q, want %q", got, body)
	}

	rc, n, err := b.GetObject(ctx, key, 2, 6)
	if err != nil {
		t.Fatalf("GetObject range: %v", err)
	}
	part, _ := io.ReadAll(rc)
	rc.Close()
	if n != 6 || string(part) != body[2:8] {
		t.Errorf("range = %q (n=%d)", part, n)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
