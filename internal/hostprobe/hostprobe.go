// Package hostprobe picks the first reachable model hub host.
package hostprobe

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultHosts in preference order.
var DefaultHosts = []string{"huggingface.co", "hf-mirror.com"}

// DefaultTimeout bounds each HEAD request.
const DefaultTimeout = 3 * time.Second

// Prober issues HEAD requests to every host concurrently and selects the
// first reachable one in preference order.
type Prober struct {
	Hosts   []string
	Path    string
	Timeout time.Duration
	Client  *http.Client
	// Scheme defaults to https.
	Scheme string
	Logger zerolog.Logger
}

// Probe returns the selected host. When no host answers the first host is
// returned so downloads still have a target.
func (p *Prober) Probe(ctx context.Context) string {
	hosts := p.Hosts
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	ok := p.Reachable(ctx, hosts)
	for i, h := range hosts {
		if ok[i] {
			p.Logger.Debug().Str("host", h).Msg("host reachable")
			return h
		}
	}
	p.Logger.Warn().Strs("hosts", hosts).Msg("no host reachable, using first")
	return hosts[0]
}

// Reachable reports, per host, whether a HEAD request got any response below
// 500 within the timeout.
func (p *Prober) Reachable(ctx context.Context, hosts []string) []bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	scheme := p.Scheme
	if scheme == "" {
		scheme = "https"
	}
	out := make([]bool, len(hosts))
	var g errgroup.Group
	for i, h := range hosts {
		i, h := i, h
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			req, err := http.NewRequestWithContext(hctx, http.MethodHead, scheme+"://"+h+p.Path, nil)
			if err != nil {
				return nil
			}
			resp, err := client.Do(req)
			if err != nil {
				p.Logger.Debug().Err(err).Str("host", h).Msg("probe failed")
				return nil
			}
			resp.Body.Close()
			out[i] = resp.StatusCode < http.StatusInternalServerError
			return nil
		})
	}
	_ = g.Wait()
	return out
}
