package replay

import (
	"context"
	"strings"

	"chatd/internal/engine"
	"chatd/internal/engine/chattmpl"
	"chatd/pkg/types"
)

type tokenizer struct {
	r      *Runtime
	family string
	vocab  *vocab
}

func (t *tokenizer) ApplyChatTemplate(msgs []types.ChatMessage, opts engine.TemplateOptions) (engine.Inputs, error) {
	cp := append([]types.ChatMessage(nil), msgs...)
	t.r.mu.Lock()
	t.r.rendered = append(t.r.rendered, cp)
	t.r.mu.Unlock()
	prompt, err := chattmpl.Render(t.family, msgs, opts)
	if err != nil {
		return engine.Inputs{}, err
	}
	return engine.Inputs{Prompt: prompt, IDs: t.vocab.encode(prompt)}, nil
}

func (t *tokenizer) Encode(text string, addSpecial bool) ([]int32, error) {
	return t.vocab.encode(text), nil
}

func (t *tokenizer) Decode(ids []int32, skipSpecial bool) (string, error) {
	return t.vocab.decode(ids, skipSpecial)
}

type model struct {
	r      *Runtime
	family string
	vocab  *vocab
	closed bool
}

// Generate replays the next turn. Inputs without a rendered prompt (warm-up
// runs on raw ids) produce a single filler token and consume no turn.
func (m *model) Generate(ctx context.Context, in engine.Inputs, opts engine.GenerateOptions, onToken func(engine.TokenEvent) error) (engine.Result, error) {
	m.r.mu.Lock()
	m.r.calls = append(m.r.calls, Call{Inputs: in, Opts: opts})
	turn := -1
	var pieces []string
	if in.Prompt == "" {
		pieces = []string{" ok"}
	} else {
		turn = m.r.turn
		m.r.turn++
		if len(m.r.Turns) > 0 {
			pieces = m.r.Turns[turn%len(m.r.Turns)]
		} else {
			pieces = m.echo()
		}
	}
	genErr := m.r.GenerateErr
	step := m.r.Step
	m.r.mu.Unlock()

	if genErr != nil && turn >= 0 {
		return engine.Result{}, genErr
	}
	if opts.MaxNewTokens > 0 && len(pieces) > opts.MaxNewTokens {
		pieces = pieces[:opts.MaxNewTokens]
	}
	var seq []int32
	for i, p := range pieces {
		if step != nil && turn >= 0 {
			step(turn, i)
		}
		if err := ctx.Err(); err != nil {
			return engine.Result{Sequence: seq}, err
		}
		if opts.Cancel.Interrupted() {
			return engine.Result{Sequence: seq}, engine.ErrInterrupted
		}
		ids := m.vocab.encode(p)
		seq = append(seq, ids...)
		if onToken == nil {
			continue
		}
		ev := engine.TokenEvent{IDs: ids, Piece: p}
		if !m.vocab.isSpecial(p) {
			ev.Text = p
		}
		if err := onToken(ev); err != nil {
			return engine.Result{Sequence: seq}, err
		}
	}
	res := engine.Result{Sequence: seq}
	if opts.ReturnCache {
		res.Cache = Cache{N: engine.CacheLen(opts.Cache) + len(in.IDs) + len(seq)}
	}
	return res, nil
}

// echo builds a reply from the last user message of the latest render.
func (m *model) echo() []string {
	var last string
	if n := len(m.r.rendered); n > 0 {
		msgs := m.r.rendered[n-1]
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == types.RoleUser {
				last = msgs[i].Content
				break
			}
		}
	}
	words := wordRe.FindAllString("You said: "+strings.TrimSpace(last), -1)
	if m.family == chattmpl.Harmony {
		out := []string{"<|channel|>", "final", "<|message|>"}
		out = append(out, words...)
		return append(out, "<|return|>")
	}
	return words
}

func (m *model) Close() error {
	m.closed = true
	return nil
}
