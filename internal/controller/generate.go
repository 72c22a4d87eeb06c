package controller

import (
	"context"
	"errors"

	"chatd/internal/engine"
	"chatd/internal/harmony"
	"chatd/pkg/types"
)

// thinkDelimiters is encoded once per generation to find the ids that flip
// the thinking/answering state.
const thinkDelimiters = "<think></think>"

// Generate runs one turn. Updates are published as tokens arrive; the turn
// ends with a complete event, an error event, or nothing when interrupted.
func (c *Controller) Generate(ctx context.Context, req types.GenerateRequest) error {
	run, err := c.prepareGenerate(req)
	if err != nil {
		return err
	}
	return run(ctx)
}

func (c *Controller) prepareGenerate(req types.GenerateRequest) (func(context.Context) error, error) {
	release, err := c.admit("generate")
	c.mu.Lock()
	if err == nil {
		// A fresh token per generation: an interrupt can never leak into
		// the next request.
		c.session.cancel = engine.NewCancelToken()
	}
	snap := c.session.snapshot()
	cancel := c.session.cancel
	c.mu.Unlock()
	if err != nil {
		generationsTotal.WithLabelValues(outcomeBusy).Inc()
		c.fail(snap.modelID, err)
		return nil, err
	}
	return func(ctx context.Context) (err error) {
		var final *types.Event
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
			release()
			switch {
			case err == nil:
				generationsTotal.WithLabelValues(outcomeComplete).Inc()
				c.emit(*final)
			case isInterrupted(err):
				generationsTotal.WithLabelValues(outcomeInterrupted).Inc()
				c.log.Info().Str("model_id", snap.modelID).Msg("generation interrupted")
				err = nil
			default:
				generationsTotal.WithLabelValues(outcomeError).Inc()
				c.fail(snap.modelID, err)
			}
		}()
		final, err = c.generate(ctx, snap, cancel, req)
		return err
	}, nil
}

func isInterrupted(err error) bool {
	return errors.Is(err, engine.ErrInterrupted) || errors.Is(err, context.Canceled)
}

// turn carries the mutable state of one generation between callbacks.
type turn struct {
	c       *Controller
	modelID string
	reason  bool
	stats   *tokenStats
	state   string

	thinkOpen, thinkClose int32
	hasThinkIDs           bool

	parser *harmony.Parser
}

func (c *Controller) generate(ctx context.Context, snap snapshot, cancel *engine.CancelToken, req types.GenerateRequest) (*types.Event, error) {
	if !snap.known {
		return nil, ErrModelNotFound(snap.modelID)
	}
	h := snap.handles
	if h == nil {
		return nil, ErrNotLoaded(snap.modelID)
	}
	d := snap.desc
	t := &turn{
		c:       c,
		modelID: snap.modelID,
		reason:  req.ReasonEnabled,
		stats:   newTokenStats(c.now()),
		state:   types.StateAnswering,
	}
	c.emit(types.Event{Status: types.StatusStart, ModelID: t.modelID})

	msgs := PatchConversation(req.Messages, d, PatchOptions{
		Reason:          req.ReasonEnabled,
		OverrideEnabled: req.SystemPromptEnabled,
		OverrideText:    req.SystemPromptText,
	})
	inputs, err := h.Tokenizer.ApplyChatTemplate(msgs, engine.TemplateOptions{
		AddGenerationPrompt: true,
		EnableThinking:      req.ReasonEnabled,
	})
	if err != nil {
		return nil, generationError{stage: "apply chat template", err: err}
	}
	if d.SupportsThinkingTag {
		ids, err := h.Tokenizer.Encode(thinkDelimiters, false)
		if err != nil {
			return nil, generationError{stage: "encode think delimiters", err: err}
		}
		if len(ids) >= 2 {
			t.thinkOpen, t.thinkClose, t.hasThinkIDs = ids[0], ids[len(ids)-1], true
		}
	}
	if d.Structured() {
		t.parser = harmony.New()
	}

	opts := engine.GenerateOptions{
		DoSample:     d.Sampling.DoSample,
		TopK:         d.Sampling.TopK,
		Temperature:  d.Sampling.Temperature,
		MaxNewTokens: d.Sampling.MaxNewTokens,
		Cancel:       cancel,
	}
	if d.UsesKVCache {
		opts.Cache = snap.cache
		opts.ReturnCache = true
	}
	c.log.Info().Str("model_id", t.modelID).Int("messages", len(msgs)).Int("prompt_tokens", len(inputs.IDs)).
		Int("cache_len", engine.CacheLen(opts.Cache)).Bool("reason", req.ReasonEnabled).Msg("generation started")

	res, err := h.Model.Generate(ctx, inputs, opts, t.onToken)
	if err != nil {
		if isInterrupted(err) {
			return nil, err
		}
		return nil, generationError{stage: "generate", err: err}
	}
	// The flag may have been set after the last boundary check.
	if cancel.Interrupted() {
		return nil, engine.ErrInterrupted
	}
	if d.UsesKVCache && res.Cache != nil {
		c.mu.Lock()
		if c.session.epoch == snap.epoch {
			c.session.cache = res.Cache
		}
		c.mu.Unlock()
	}

	text, err := h.Tokenizer.Decode(res.Sequence, true)
	if err != nil {
		return nil, generationError{stage: "decode", err: err}
	}
	output := cleanThink(text, t.reason)
	if t.parser != nil {
		if final, ok := finalContent(t.parser); ok {
			output = final
		}
	}
	tps := t.stats.tps()
	if ttft := t.stats.ttft(); ttft != nil {
		ttftSeconds.Observe(*ttft / 1000)
	}
	tokensPerSecond.Set(tps)
	c.log.Info().Str("model_id", t.modelID).Int("tokens", t.stats.n).Float64("tps", tps).
		Interface("ttft_ms", t.stats.ttft()).Msg("generation complete")
	return &types.Event{
		Status:    types.StatusComplete,
		ModelID:   t.modelID,
		Output:    output,
		State:     t.state,
		TTFT:      t.stats.ttft(),
		TPS:       types.Float(tps),
		NumTokens: t.stats.n,
	}, nil
}

// onToken is the per-step callback: it updates stats and the thinking flag
// and publishes the cleaned text delta.
func (t *turn) onToken(ev engine.TokenEvent) error {
	t.stats.observe(t.c.now())
	if t.hasThinkIDs && len(ev.IDs) > 0 {
		switch ev.IDs[0] {
		case t.thinkOpen:
			t.state = types.StateThinking
		case t.thinkClose:
			t.state = types.StateAnswering
		}
	}
	if t.parser != nil {
		t.forward(ev.Piece)
		return nil
	}
	if ev.Text == "" {
		return nil
	}
	delta := cleanThink(ev.Text, t.reason)
	if delta == "" {
		return nil
	}
	t.c.emit(types.Event{
		Status:    types.StatusUpdate,
		ModelID:   t.modelID,
		Output:    delta,
		TextDelta: delta,
		TPS:       types.Float(t.stats.tps()),
		NumTokens: t.stats.n,
		TTFT:      t.stats.ttft(),
		State:     t.state,
	})
	return nil
}

// forward pushes a raw piece into the harmony parser and publishes content
// deltas with their message index and channel.
func (t *turn) forward(piece string) {
	d := t.parser.Push(piece)
	if d == nil || d.Kind != harmony.DeltaContent {
		return
	}
	msg, ok := t.parser.Message(d.MessageIndex)
	if !ok {
		return
	}
	t.state = types.StateAnswering
	if msg.Channel == harmony.ChannelAnalysis {
		t.state = types.StateThinking
	}
	t.c.emit(types.Event{
		Status:       types.StatusUpdate,
		ModelID:      t.modelID,
		Output:       msg.Content,
		TextDelta:    d.TextDelta,
		TPS:          types.Float(t.stats.tps()),
		NumTokens:    t.stats.n,
		TTFT:         t.stats.ttft(),
		State:        t.state,
		MessageIndex: types.Int(d.MessageIndex),
		Channel:      msg.Channel,
	})
}

// finalContent returns the content of the last final-channel message.
func finalContent(p *harmony.Parser) (string, bool) {
	msgs := p.Result().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Channel == harmony.ChannelFinal {
			return msgs[i].Content, true
		}
	}
	return "", false
}
