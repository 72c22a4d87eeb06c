package llama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"chatd/internal/engine"
)

func TestFetchReportsProgressAndCaches(t *testing.T) {
	body := strings.Repeat("x", 4096)
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/org/repo/resolve/main/model.gguf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	f.Client = srv.Client()
	f.Scheme = "http"
	f.SetHost(strings.TrimPrefix(srv.URL, "http://"))

	ref := engine.Ref{Model: "org/repo", File: "model.gguf"}
	var got []engine.Progress
	path, err := f.Fetch(context.Background(), ref, func(p engine.Progress) { got = append(got, p) })
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != body {
		t.Fatalf("cached file mismatch: %v", err)
	}
	if len(got) < 3 {
		t.Fatalf("expected initiate/progress/done, got %+v", got)
	}
	if got[0].Status != engine.ProgressInitiate || got[0].Total != 4096 || got[0].Name != "org/repo" || got[0].File != "model.gguf" {
		t.Fatalf("bad initiate: %+v", got[0])
	}
	last := got[len(got)-1]
	if last.Status != engine.ProgressDone || last.Loaded != 4096 {
		t.Fatalf("bad done: %+v", last)
	}
	if p := got[len(got)-2]; p.Status != engine.ProgressDownload || p.Percent != 100 {
		t.Fatalf("bad final progress: %+v", p)
	}

	got = nil
	if _, err := f.Fetch(context.Background(), ref, func(p engine.Progress) { got = append(got, p) }); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected cached file to be reused, hits=%d", hits)
	}
	if len(got) != 2 || got[0].Status != engine.ProgressInitiate || got[1].Status != engine.ProgressDone {
		t.Fatalf("cached fetch events: %+v", got)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()
	f := NewFetcher(t.TempDir())
	f.Scheme = "http"
	f.SetHost(strings.TrimPrefix(srv.URL, "http://"))
	_, err := f.Fetch(context.Background(), engine.Ref{Model: "a/b", File: "c.gguf"}, nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if _, statErr := os.Stat(f.Path(engine.Ref{Model: "a/b", File: "c.gguf"})); !os.IsNotExist(statErr) {
		t.Fatalf("partial file left behind: %v", statErr)
	}
}

func TestFetcherHostAndURL(t *testing.T) {
	f := NewFetcher("/tmp/x")
	if f.Host() != DefaultHost {
		t.Fatalf("default host=%q", f.Host())
	}
	f.SetHost("  ")
	if f.Host() != DefaultHost {
		t.Fatalf("blank host must be ignored")
	}
	f.SetHost("hf-mirror.com")
	want := "https://hf-mirror.com/org/repo/resolve/main/onnx/model.onnx"
	if got := f.URL(engine.Ref{Model: "org/repo", File: "onnx/model.onnx"}); got != want {
		t.Fatalf("url=%q want %q", got, want)
	}
	if _, err := f.Fetch(context.Background(), engine.Ref{Model: "org/repo"}, nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
