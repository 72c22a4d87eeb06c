package replay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatd/internal/engine"
	"chatd/pkg/types"
)

func acquire(t *testing.T, r *Runtime, family string) *engine.Handles {
	t.Helper()
	h, err := r.Acquire(context.Background(), engine.Ref{Model: "org/m"}, engine.AcquireOptions{Template: family})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return h
}

func TestAcquireReportsProgress(t *testing.T) {
	r := &Runtime{Files: []File{{Name: "a.gguf", Size: 100}}}
	var got []engine.Progress
	_, err := r.Acquire(context.Background(), engine.Ref{Model: "org/m"}, engine.AcquireOptions{
		OnProgress: func(p engine.Progress) { got = append(got, p) },
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	statuses := []string{}
	for _, p := range got {
		statuses = append(statuses, p.Status)
	}
	if strings.Join(statuses, ",") != "initiate,progress,progress,done" {
		t.Fatalf("statuses=%v", statuses)
	}
	if got[2].Percent != 100 || got[2].Loaded != 100 || got[0].Total != 100 {
		t.Fatalf("unexpected progress: %+v", got)
	}
}

func TestAcquireUnknownTemplate(t *testing.T) {
	if _, err := New().Acquire(context.Background(), engine.Ref{}, engine.AcquireOptions{Template: "nope"}); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := acquire(t, New(), "chatml")
	ids, _ := h.Tokenizer.Encode("<think></think>", false)
	if len(ids) != 2 {
		t.Fatalf("think markers should encode to two ids, got %v", ids)
	}
	text := "<|im_start|>user\nhello world<|im_end|>"
	ids, _ = h.Tokenizer.Encode(text, true)
	full, _ := h.Tokenizer.Decode(ids, false)
	if full != text {
		t.Fatalf("round trip %q != %q", full, text)
	}
	skipped, _ := h.Tokenizer.Decode(ids, true)
	if skipped != "user\nhello world" {
		t.Fatalf("skip special: %q", skipped)
	}
	if _, err := h.Tokenizer.Decode([]int32{9999}, false); err == nil {
		t.Fatalf("expected unknown id error")
	}
}

func TestGenerateReplaysTurnsAndCache(t *testing.T) {
	r := &Runtime{Turns: [][]string{{"a", " b"}, {"c"}}}
	h := acquire(t, r, "chatml")
	in, _ := h.Tokenizer.ApplyChatTemplate([]types.ChatMessage{{Role: types.RoleUser, Content: "q"}}, engine.TemplateOptions{AddGenerationPrompt: true})
	var text strings.Builder
	res, err := h.Model.Generate(context.Background(), in, engine.GenerateOptions{ReturnCache: true}, func(ev engine.TokenEvent) error {
		text.WriteString(ev.Text)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text.String() != "a b" || len(res.Sequence) != 2 {
		t.Fatalf("text=%q seq=%v", text.String(), res.Sequence)
	}
	if res.Cache == nil || res.Cache.Len() != len(in.IDs)+2 {
		t.Fatalf("cache=%v", res.Cache)
	}
	res2, _ := h.Model.Generate(context.Background(), in, engine.GenerateOptions{Cache: res.Cache}, nil)
	if res2.Cache != nil {
		t.Fatalf("cache returned without ReturnCache")
	}
	if got := r.Calls(); len(got) != 2 || got[1].Opts.Cache != res.Cache {
		t.Fatalf("calls not recorded: %+v", got)
	}
}

func TestGenerateInterrupt(t *testing.T) {
	tok := engine.NewCancelToken()
	r := &Runtime{Turns: [][]string{{"a", "b", "c"}}}
	r.Step = func(turn, i int) {
		if i == 1 {
			tok.Interrupt()
		}
	}
	h := acquire(t, r, "chatml")
	n := 0
	_, err := h.Model.Generate(context.Background(), engine.Inputs{Prompt: "p"}, engine.GenerateOptions{Cancel: tok}, func(engine.TokenEvent) error {
		n++
		return nil
	})
	if !errors.Is(err, engine.ErrInterrupted) || n != 1 {
		t.Fatalf("err=%v tokens=%d", err, n)
	}
}

func TestWarmupDoesNotConsumeTurn(t *testing.T) {
	r := &Runtime{Turns: [][]string{{"first"}}}
	h := acquire(t, r, "chatml")
	if _, err := h.Model.Generate(context.Background(), engine.Inputs{IDs: []int32{1}}, engine.GenerateOptions{MaxNewTokens: 1}, nil); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	var got string
	_, _ = h.Model.Generate(context.Background(), engine.Inputs{Prompt: "p"}, engine.GenerateOptions{}, func(ev engine.TokenEvent) error {
		got += ev.Text
		return nil
	})
	if got != "first" {
		t.Fatalf("got %q", got)
	}
}

func TestEchoHarmony(t *testing.T) {
	r := New()
	h := acquire(t, r, "harmony")
	in, _ := h.Tokenizer.ApplyChatTemplate([]types.ChatMessage{{Role: types.RoleUser, Content: "ping"}}, engine.TemplateOptions{AddGenerationPrompt: true})
	var pieces []string
	_, _ = h.Model.Generate(context.Background(), in, engine.GenerateOptions{}, func(ev engine.TokenEvent) error {
		pieces = append(pieces, ev.Piece)
		return nil
	})
	joined := strings.Join(pieces, "")
	if joined != "<|channel|>final<|message|>You said: ping<|return|>" {
		t.Fatalf("echo=%q", joined)
	}
}
