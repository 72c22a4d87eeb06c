package llama

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chatd/internal/common/fsutil"
	"chatd/internal/engine"
)

// DefaultHost is the model hub used until a reachable host is announced.
const DefaultHost = "huggingface.co"

// Fetcher downloads weight files from a Hugging Face compatible hub into a
// local cache directory, reporting progress as it goes.
type Fetcher struct {
	Dir    string
	Client *http.Client
	// Scheme defaults to https.
	Scheme string

	mu   sync.RWMutex
	host string
}

// NewFetcher returns a fetcher rooted at dir using the default host.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{Dir: dir, Client: http.DefaultClient, host: DefaultHost}
}

// SetHost switches the hub host. Empty values are ignored.
func (f *Fetcher) SetHost(host string) {
	host = strings.TrimSpace(host)
	if host == "" {
		return
	}
	f.mu.Lock()
	f.host = host
	f.mu.Unlock()
}

// Host returns the current hub host.
func (f *Fetcher) Host() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.host == "" {
		return DefaultHost
	}
	return f.host
}

// URL returns the download location of ref on the current host.
func (f *Fetcher) URL(ref engine.Ref) string {
	scheme := f.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/resolve/main/%s", scheme, f.Host(), ref.Model, ref.File)
}

// Path returns where ref is cached on disk.
func (f *Fetcher) Path(ref engine.Ref) string {
	return filepath.Join(f.Dir, filepath.FromSlash(ref.Model), filepath.FromSlash(ref.File))
}

// Fetch makes sure ref is present on disk and returns its path. A cached
// file is reported as initiate followed by done.
func (f *Fetcher) Fetch(ctx context.Context, ref engine.Ref, onProgress func(engine.Progress)) (string, error) {
	if strings.TrimSpace(ref.File) == "" {
		return "", fmt.Errorf("fetch %s: no file", ref.Model)
	}
	report := func(p engine.Progress) {
		p.Name, p.File = ref.Model, ref.File
		if onProgress != nil {
			onProgress(p)
		}
	}
	dst := f.Path(ref)
	if size, ok := fsutil.FileSize(dst); ok {
		report(engine.Progress{Status: engine.ProgressInitiate, Total: size})
		report(engine.Progress{Status: engine.ProgressDone, Loaded: size, Total: size})
		return dst, nil
	}
	if err := fsutil.EnsureParent(dst); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(ref), nil)
	if err != nil {
		return "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s/%s: %w", ref.Model, ref.File, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s/%s: unexpected status %s", ref.Model, ref.File, resp.Status)
	}
	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	report(engine.Progress{Status: engine.ProgressInitiate, Total: total})

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".part-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	pw := &progressWriter{total: total, last: -1, report: report}
	if _, err := io.Copy(tmp, io.TeeReader(resp.Body, pw)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("fetch %s/%s: %w", ref.Model, ref.File, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	report(engine.Progress{Status: engine.ProgressDone, Loaded: pw.loaded, Total: total})
	return dst, nil
}

// progressWriter reports whole-percent steps of a download.
type progressWriter struct {
	loaded int64
	total  int64
	last   int
	report func(engine.Progress)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.loaded += int64(len(p))
	if w.total <= 0 {
		return len(p), nil
	}
	pct := float64(w.loaded) * 100 / float64(w.total)
	if int(pct) != w.last {
		w.last = int(pct)
		w.report(engine.Progress{Status: engine.ProgressDownload, Percent: pct, Loaded: w.loaded, Total: w.total})
	}
	return len(p), nil
}
