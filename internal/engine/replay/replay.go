// Package replay is a deterministic model runtime that replays captured
// token sequences. It backs the controller tests and lets the UI run
// without model weights.
package replay

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"chatd/internal/engine"
	"chatd/internal/engine/chattmpl"
	"chatd/pkg/types"
)

// File is a fake weight file reported through download progress.
type File struct {
	Name string
	Size int64
}

// Call records one Generate invocation.
type Call struct {
	Inputs engine.Inputs
	Opts   engine.GenerateOptions
}

// Runtime replays Turns in order, one per generation. Without turns it
// echoes the last user message.
type Runtime struct {
	// Files reported as initiate/progress/done during Acquire.
	Files []File
	// Turns holds the raw token pieces of each generation.
	Turns [][]string
	// Step, when set, runs before token i of generation turn.
	Step func(turn, i int)
	// AcquireErr and GenerateErr force failures.
	AcquireErr  error
	GenerateErr error

	mu       sync.Mutex
	turn     int
	calls    []Call
	rendered [][]types.ChatMessage
	acquired []engine.AcquireOptions
}

// New returns an echo runtime.
func New() *Runtime { return &Runtime{} }

// Acquire reports progress for each configured file and returns fresh handles.
func (r *Runtime) Acquire(ctx context.Context, ref engine.Ref, opts engine.AcquireOptions) (*engine.Handles, error) {
	r.mu.Lock()
	r.acquired = append(r.acquired, opts)
	r.mu.Unlock()
	for _, f := range r.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(opts.OnProgress, engine.Progress{Status: engine.ProgressInitiate, Name: ref.Model, File: f.Name, Total: f.Size})
		for _, pct := range []float64{50, 100} {
			report(opts.OnProgress, engine.Progress{
				Status: engine.ProgressDownload, Name: ref.Model, File: f.Name,
				Percent: pct, Loaded: int64(float64(f.Size) * pct / 100), Total: f.Size,
			})
		}
		report(opts.OnProgress, engine.Progress{Status: engine.ProgressDone, Name: ref.Model, File: f.Name, Total: f.Size})
	}
	if r.AcquireErr != nil {
		return nil, r.AcquireErr
	}
	family := opts.Template
	if family == "" {
		family = chattmpl.ChatML
	}
	if !chattmpl.Known(family) {
		return nil, chattmpl.ErrUnknownFamily(family)
	}
	v := newVocab(chattmpl.Specials(family))
	return &engine.Handles{
		Tokenizer: &tokenizer{r: r, family: family, vocab: v},
		Model:     &model{r: r, family: family, vocab: v},
	}, nil
}

func report(fn func(engine.Progress), p engine.Progress) {
	if fn != nil {
		fn(p)
	}
}

// Calls returns every Generate invocation, warm-ups included.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Rendered returns the conversations passed to ApplyChatTemplate.
func (r *Runtime) Rendered() [][]types.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]types.ChatMessage(nil), r.rendered...)
}

// Acquired returns the options of every Acquire call.
func (r *Runtime) Acquired() []engine.AcquireOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.AcquireOptions(nil), r.acquired...)
}

// Cache is the replayed key-value cache: only its length is tracked.
type Cache struct{ N int }

func (c Cache) Len() int { return c.N }

// vocab assigns ids to pieces on first sight. Special tokens and the think
// delimiters are registered up front.
type vocab struct {
	mu      sync.Mutex
	ids     map[string]int32
	pieces  []string
	special map[string]bool
	order   []string
}

func newVocab(specials []string) *vocab {
	v := &vocab{ids: map[string]int32{}, special: map[string]bool{}}
	for _, s := range specials {
		v.special[s] = true
		v.order = append(v.order, s)
		v.id(s)
	}
	for _, s := range []string{"<think>", "</think>"} {
		v.order = append(v.order, s)
		v.id(s)
	}
	return v
}

func (v *vocab) id(piece string) int32 {
	if id, ok := v.ids[piece]; ok {
		return id
	}
	id := int32(len(v.pieces))
	v.ids[piece] = id
	v.pieces = append(v.pieces, piece)
	return id
}

var wordRe = regexp.MustCompile(`\s*\S+|\s+`)

// split breaks text into known markers and whitespace-led words.
func (v *vocab) split(text string) []string {
	var out []string
	for len(text) > 0 {
		next, marker := len(text), ""
		for _, m := range v.order {
			if i := strings.Index(text, m); i >= 0 && (i < next || (i == next && len(m) > len(marker))) {
				next, marker = i, m
			}
		}
		out = append(out, wordRe.FindAllString(text[:next], -1)...)
		if marker == "" {
			break
		}
		out = append(out, marker)
		text = text[next+len(marker):]
	}
	return out
}

func (v *vocab) encode(text string) []int32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	var ids []int32
	for _, p := range v.split(text) {
		ids = append(ids, v.id(p))
	}
	return ids
}

func (v *vocab) decode(ids []int32, skipSpecial bool) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(v.pieces) {
			return "", errUnknownID(id)
		}
		p := v.pieces[id]
		if skipSpecial && v.special[p] {
			continue
		}
		b.WriteString(p)
	}
	return b.String(), nil
}

func (v *vocab) isSpecial(piece string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.special[piece]
}

type errUnknownID int32

func (e errUnknownID) Error() string { return "replay: unknown token id" }
