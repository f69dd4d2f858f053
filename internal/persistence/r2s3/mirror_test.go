package r2s3

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
)

func TestClientPutFileSigns(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotAuth string
		gotType string
		gotBody string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotAuth, gotType, gotBody = r.URL.Path, r.Header.Get("Authorization"), r.Header.Get("Content-Type"), string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(Config{Endpoint: ts.URL, Bucket: "runs", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	local := filepath.Join(t.TempDir(), "meta.json")
	if err := os.WriteFile(local, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.PutFile(context.Background(), "/p/runs/r1/archive/meta.json", local); err != nil {
		t.Fatalf("put: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/runs/p/runs/r1/archive/meta.json" {
		t.Fatalf("path=%q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request") {
		t.Fatalf("auth=%q", gotAuth)
	}
	if gotType != "application/json" || gotBody != `{"ok":true}` {
		t.Fatalf("type=%q body=%q", gotType, gotBody)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestObjectKey(t *testing.T) {
	for in, want := range map[string]string{
		"a/b/c":         "a/b/c",
		"/a//b/":        "a/b",
		`a\b`:           "a/b",
		"../../etc/pwd": "etc/pwd",
		"  ":            "",
	} {
		if got := ObjectKey(in); got != want {
			t.Fatalf("ObjectKey(%q)=%q want %q", in, got, want)
		}
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	fails int
	keys  []string
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("boom")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirrorRetriesAndCounts(t *testing.T) {
	up := &fakeUploader{fails: 2}
	m := newMirror(up, MirrorConfig{Prefix: "sim/", Attempts: 3}, nil)
	m.sleep = func(time.Duration) {}

	runDir := filepath.Join(t.TempDir(), "runs", "r1")
	m.Enqueue("r1", runDir, filepath.Join(runDir, "snapshots", "50.snap.zst"))
	m.Enqueue("r1", runDir, filepath.Join(runDir, "..", "elsewhere.txt"))
	m.Close()

	st := m.Stats()
	if st.EnqueuedTotal != 1 || st.UploadedTotal != 1 || st.FailedTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
	if len(up.keys) != 1 || up.keys[0] != "sim/runs/r1/snapshots/50.snap.zst" {
		t.Fatalf("keys: %v", up.keys)
	}
}

func TestMirrorGivesUp(t *testing.T) {
	up := &fakeUploader{fails: 10}
	m := newMirror(up, MirrorConfig{Attempts: 2}, nil)
	m.sleep = func(time.Duration) {}
	runDir := t.TempDir()
	m.Enqueue("r1", runDir, filepath.Join(runDir, "a.json"))
	m.Close()
	if st := m.Stats(); st.FailedTotal != 1 || st.UploadedTotal != 0 || st.LastErrorUnix == 0 {
		t.Fatalf("stats: %+v", st)
	}
}
