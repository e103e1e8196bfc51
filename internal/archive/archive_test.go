package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
)

// fakeBucket records object uploads.
type fakeBucket struct {
	mu      sync.Mutex
	status  int
	puts    map[string]string
	deletes []string
}

func newFakeBucket(t *testing.T, status int) (*fakeBucket, string) {
	t.Helper()
	b := &fakeBucket{status: status, puts: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			b.puts[r.URL.Path] = string(body)
		case http.MethodDelete:
			b.deletes = append(b.deletes, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(b.status)
	}))
	t.Cleanup(srv.Close)
	return b, srv.URL
}

func (b *fakeBucket) put(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.puts[key]
	return body, ok
}

func testConfig(endpoint string) types.S3Config {
	return types.S3Config{
		Endpoint:        endpoint,
		Bucket:          "logs",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Prefix:          "studio1",
	}
}

func writeLog(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "triggers-2026-03-02.jsonl")
	if err := os.WriteFile(p, []byte(`{"type":"trigger_fired"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(types.S3Config{Bucket: "logs"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("New() error = %v, want ErrNotConfigured", err)
	}
}

func TestKey(t *testing.T) {
	u, err := New(testConfig("http://localhost"))
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Key("/var/log/vt/triggers-2026-03-02.jsonl"); got != "studio1/triggers-2026-03-02.jsonl" {
		t.Errorf("Key() = %q", got)
	}
}

func TestUpload(t *testing.T) {
	bucket, endpoint := newFakeBucket(t, http.StatusOK)
	u, err := New(testConfig(endpoint))
	if err != nil {
		t.Fatal(err)
	}

	if err := u.Upload(context.Background(), writeLog(t)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	body, ok := bucket.put("/logs/studio1/triggers-2026-03-02.jsonl")
	if !ok {
		t.Fatalf("object not uploaded, got %v", bucket.puts)
	}
	if !strings.Contains(body, "trigger_fired") {
		t.Errorf("uploaded body = %q", body)
	}
}

func TestUploadFailureQueuesRetry(t *testing.T) {
	_, endpoint := newFakeBucket(t, http.StatusForbidden)
	u, err := New(testConfig(endpoint))
	if err != nil {
		t.Fatal(err)
	}

	p := writeLog(t)
	u.uploadOrQueue(context.Background(), p)
	u.uploadOrQueue(context.Background(), p) // duplicate is ignored
	if got := u.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	// Retry after the file disappeared drops it.
	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	u.processRetryQueue(context.Background(), time.Now())
	if got := u.Pending(); got != 0 {
		t.Errorf("Pending() after missing file = %d, want 0", got)
	}
}

func TestRetryAbandonedAfterMaxAge(t *testing.T) {
	_, endpoint := newFakeBucket(t, http.StatusForbidden)
	u, err := New(testConfig(endpoint))
	if err != nil {
		t.Fatal(err)
	}

	u.addToRetryQueue(writeLog(t), "forbidden")
	u.processRetryQueue(context.Background(), time.Now().Add(MaxRetryAge+time.Hour))
	if got := u.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestRunDrainsQueueOnShutdown(t *testing.T) {
	// Both the cancellation and the queued file are ready when Run starts;
	// repeat so either select branch gets taken.
	for i := range 20 {
		bucket, endpoint := newFakeBucket(t, http.StatusOK)
		u, err := New(testConfig(endpoint))
		if err != nil {
			t.Fatal(err)
		}

		u.Enqueue(writeLog(t))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := u.Run(ctx); err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}

		if _, ok := bucket.put("/logs/studio1/triggers-2026-03-02.jsonl"); !ok {
			t.Fatalf("run %d: queued file not uploaded on shutdown", i)
		}
		if got := u.Pending(); got != 0 {
			t.Fatalf("run %d: Pending() = %d, want 0", i, got)
		}
	}
}

func TestRunRetriesPendingOnShutdown(t *testing.T) {
	bucket, endpoint := newFakeBucket(t, http.StatusOK)
	u, err := New(testConfig(endpoint))
	if err != nil {
		t.Fatal(err)
	}

	u.addToRetryQueue(writeLog(t), "connection refused")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := u.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, ok := bucket.put("/logs/studio1/triggers-2026-03-02.jsonl"); !ok {
		t.Error("pending retry not uploaded on shutdown")
	}
	if got := u.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestConnectionUploadsAndDeletes(t *testing.T) {
	bucket, endpoint := newFakeBucket(t, http.StatusOK)

	if err := TestConnection(context.Background(), testConfig(endpoint)); err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	if len(bucket.puts) != 1 || len(bucket.deletes) != 1 {
		t.Errorf("puts %v deletes %v, want one each", bucket.puts, bucket.deletes)
	}
}

func TestConnectionNotConfigured(t *testing.T) {
	if err := TestConnection(context.Background(), types.S3Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("TestConnection() error = %v, want ErrNotConfigured", err)
	}
}
