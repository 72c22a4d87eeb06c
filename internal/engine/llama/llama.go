//go:build llama

package llama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	llamacpp "github.com/go-skynet/go-llama.cpp"
	"github.com/google/uuid"

	"chatd/internal/engine"
	"chatd/internal/engine/chattmpl"
	"chatd/pkg/types"
)

// Built reports whether this binary links llama.cpp.
const Built = true

// Runtime downloads GGUF weights and loads them with llama.cpp.
type Runtime struct {
	opts  Options
	fetch *Fetcher
}

// New returns a runtime caching weights under opts.CacheDir.
func New(opts Options) *Runtime {
	opts = opts.withDefaults()
	return &Runtime{opts: opts, fetch: NewFetcher(opts.CacheDir)}
}

// SetHost switches the hub host used for downloads.
func (r *Runtime) SetHost(host string) { r.fetch.SetHost(host) }

func (r *Runtime) Acquire(ctx context.Context, ref engine.Ref, opts engine.AcquireOptions) (*engine.Handles, error) {
	family := opts.Template
	if family == "" {
		family = chattmpl.ChatML
	}
	if !chattmpl.Known(family) {
		return nil, chattmpl.ErrUnknownFamily(family)
	}
	path, err := r.fetch.Fetch(ctx, ref, opts.OnProgress)
	if err != nil {
		return nil, err
	}
	mo := []llamacpp.ModelOption{llamacpp.SetContext(r.opts.ContextSize)}
	if !strings.EqualFold(opts.Device, "cpu") {
		mo = append(mo, llamacpp.SetGPULayers(r.opts.GPULayers))
	}
	if strings.Contains(strings.ToLower(opts.DataType), "f16") {
		mo = append(mo, llamacpp.EnableF16Memory)
	}
	l, err := llamacpp.New(path, mo...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	m := &model{
		l:        l,
		threads:  r.opts.Threads,
		cacheDir: filepath.Join(r.opts.CacheDir, "prompt-cache"),
		special:  map[string]bool{},
		pieces:   map[int32]string{},
	}
	for _, s := range chattmpl.Specials(family) {
		m.special[s] = true
	}
	if _, ids, err := l.TokenizeString(""); err == nil && len(ids) == 1 {
		m.bos, m.hasBOS = ids[0], true
	}
	r.opts.Logger.Debug().Str("model", ref.Model).Str("file", path).Str("template", family).Msg("llama model loaded")
	return &engine.Handles{
		Tokenizer: &tokenizer{m: m, family: family},
		Model:     m,
	}, nil
}

type tokenizer struct {
	m      *model
	family string
}

func (t *tokenizer) ApplyChatTemplate(msgs []types.ChatMessage, opts engine.TemplateOptions) (engine.Inputs, error) {
	prompt, err := chattmpl.Render(t.family, msgs, opts)
	if err != nil {
		return engine.Inputs{}, err
	}
	ids, err := t.Encode(prompt, true)
	if err != nil {
		return engine.Inputs{}, err
	}
	return engine.Inputs{Prompt: prompt, IDs: ids}, nil
}

func (t *tokenizer) Encode(text string, addSpecial bool) ([]int32, error) {
	return t.m.encode(text, addSpecial)
}

// Decode maps ids back through the pieces seen during generation. llama.cpp
// exposes no detokenizer through the bindings.
func (t *tokenizer) Decode(ids []int32, skipSpecial bool) (string, error) {
	t.m.memo.Lock()
	defer t.m.memo.Unlock()
	var b strings.Builder
	for _, id := range ids {
		p, ok := t.m.pieces[id]
		if !ok {
			continue
		}
		if skipSpecial && t.m.special[p] {
			continue
		}
		b.WriteString(p)
	}
	return b.String(), nil
}

// promptCache is a llama.cpp prompt-cache file. Every turn writes a new file
// so earlier caches stay immutable.
type promptCache struct {
	path string
	n    int
}

func (c *promptCache) Len() int { return c.n }

type model struct {
	mu       sync.Mutex
	l        *llamacpp.LLama
	threads  int
	cacheDir string
	special  map[string]bool
	bos      int32
	hasBOS   bool

	memo   sync.Mutex
	pieces map[int32]string
}

func (m *model) encode(text string, addSpecial bool) ([]int32, error) {
	if m.l == nil {
		return nil, errors.New("llama model closed")
	}
	_, ids, err := m.l.TokenizeString(text)
	if err != nil {
		return nil, err
	}
	if !addSpecial && m.hasBOS && len(ids) > 0 && ids[0] == m.bos {
		ids = ids[1:]
	}
	return ids, nil
}

func (m *model) Generate(ctx context.Context, in engine.Inputs, opts engine.GenerateOptions, onToken func(engine.TokenEvent) error) (engine.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l == nil {
		return engine.Result{}, errors.New("llama model closed")
	}

	var cache *promptCache
	if opts.ReturnCache {
		var err error
		if cache, err = m.nextCache(opts.Cache); err != nil {
			return engine.Result{}, err
		}
	}

	var (
		seq     []int32
		cbErr   error
		stopped error
	)
	m.l.SetTokenCallback(func(piece string) bool {
		if err := ctx.Err(); err != nil {
			stopped = err
			return false
		}
		if opts.Cancel.Interrupted() {
			stopped = engine.ErrInterrupted
			return false
		}
		ids := m.remember(piece)
		seq = append(seq, ids...)
		if onToken == nil {
			return true
		}
		ev := engine.TokenEvent{IDs: ids, Piece: piece}
		if !m.special[piece] {
			ev.Text = piece
		}
		if err := onToken(ev); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	defer m.l.SetTokenCallback(nil)

	prompt := in.Prompt
	if prompt == "" {
		// Warm-up runs on raw ids; any short text exercises the same kernels.
		prompt = " "
	}
	po := predictOptions(opts, m.threads)
	if cache != nil {
		po = append(po, llamacpp.SetPathPromptCache(cache.path), llamacpp.EnablePromptCacheAll)
	}
	_, err := m.l.Predict(prompt, po...)
	switch {
	case cbErr != nil:
		return engine.Result{Sequence: seq}, cbErr
	case stopped != nil:
		return engine.Result{Sequence: seq}, stopped
	case err != nil:
		return engine.Result{Sequence: seq}, err
	}
	res := engine.Result{Sequence: seq}
	if cache != nil {
		cache.n = engine.CacheLen(opts.Cache) + len(in.IDs) + len(seq)
		res.Cache = cache
	}
	return res, nil
}

// remember assigns piece to the ids it tokenizes to, so Decode can invert
// them. Multi-id pieces map to their first id.
func (m *model) remember(piece string) []int32 {
	ids, err := m.encode(piece, false)
	if err != nil || len(ids) == 0 {
		return nil
	}
	m.memo.Lock()
	m.pieces[ids[0]] = piece
	for _, id := range ids[1:] {
		if _, ok := m.pieces[id]; !ok {
			m.pieces[id] = ""
		}
	}
	m.memo.Unlock()
	return ids
}

// nextCache copies prev into a fresh file that this turn may extend.
func (m *model) nextCache(prev engine.KVCache) (*promptCache, error) {
	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return nil, err
	}
	next := &promptCache{path: filepath.Join(m.cacheDir, uuid.NewString()+".bin")}
	p, ok := prev.(*promptCache)
	if !ok || p == nil {
		return next, nil
	}
	src, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return next, nil
		}
		return nil, err
	}
	defer src.Close()
	dst, err := os.Create(next.path)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return nil, err
	}
	return next, dst.Close()
}

func (m *model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l != nil {
		m.l.Free()
		m.l = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts sampling parameters into go-llama.cpp options.
// Greedy decoding is a zero temperature.
func predictOptions(opts engine.GenerateOptions, threads int) []llamacpp.PredictOption {
	temp := float32(0)
	if opts.DoSample {
		temp = float32(opts.Temperature)
		if temp <= 0 {
			temp = llamacpp.DefaultOptions.Temperature
		}
	}
	return []llamacpp.PredictOption{
		llamacpp.SetTokens(max(1, zn(opts.MaxNewTokens, llamacpp.DefaultOptions.Tokens))),
		llamacpp.SetThreads(max(1, threads)),
		llamacpp.SetTopK(zn(opts.TopK, llamacpp.DefaultOptions.TopK)),
		llamacpp.SetTopP(llamacpp.DefaultOptions.TopP),
		llamacpp.SetTemperature(temp),
		llamacpp.SetPenalty(llamacpp.DefaultOptions.Penalty),
	}
}
