package controller

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"chatd/internal/engine"
	"chatd/internal/engine/replay"
	"chatd/pkg/types"
)

func TestGenerateStreamsUpdates(t *testing.T) {
	rt := &replay.Runtime{Turns: [][]string{{"Hello", " world"}}}
	f := newFixture(t, rt)
	f.load(t, "plain")
	before := testutil.ToFloat64(generationsTotal.WithLabelValues(outcomeComplete))

	if err := f.c.Generate(testContext(t), userTurn("hi")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := statusList(f.pub); got != "start,update,update,complete" {
		t.Fatalf("statuses=%s", got)
	}
	ups := eventsOf(f.pub, types.StatusUpdate)
	if ups[0].TextDelta != "Hello" || ups[1].TextDelta != " world" || ups[1].NumTokens != 2 {
		t.Fatalf("updates: %+v", ups)
	}
	if ups[0].TTFT == nil || *ups[0].TTFT <= 0 || *ups[0].TPS != 0 || *ups[1].TPS <= 0 {
		t.Fatalf("stats: ttft=%v tps0=%v tps1=%v", ups[0].TTFT, *ups[0].TPS, *ups[1].TPS)
	}
	done := eventsOf(f.pub, types.StatusComplete)[0]
	if done.Output != "Hello world" || done.State != types.StateAnswering || done.TTFT == nil || done.NumTokens != 2 {
		t.Fatalf("complete: %+v", done)
	}
	if after := testutil.ToFloat64(generationsTotal.WithLabelValues(outcomeComplete)); after != before+1 {
		t.Fatalf("complete counter %v -> %v", before, after)
	}

	rendered := rt.Rendered()
	last := rendered[len(rendered)-1]
	if last[0].Role != types.RoleSystem || last[0].Content != "You are helpful." {
		t.Fatalf("default system prompt not injected: %+v", last)
	}
}

func TestGenerateThinkingState(t *testing.T) {
	turn := []string{"<think>", "hmm", "</think>", " Hi"}
	for _, tc := range []struct {
		name   string
		reason bool
		deltas []string
		states []string
		output string
	}{
		{
			name: "reasoning on", reason: true,
			deltas: []string{`<div class="think">`, "hmm", "</div>", " Hi"},
			states: []string{types.StateThinking, types.StateThinking, types.StateAnswering, types.StateAnswering},
			output: `<div class="think">hmm</div> Hi`,
		},
		{
			name: "reasoning off", reason: false,
			deltas: []string{"hmm", " Hi"},
			states: []string{types.StateThinking, types.StateAnswering},
			output: "hmm Hi",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &replay.Runtime{Turns: [][]string{turn}})
			f.load(t, "cached")
			req := userTurn("why?")
			req.ReasonEnabled = tc.reason
			if err := f.c.Generate(testContext(t), req); err != nil {
				t.Fatalf("generate: %v", err)
			}
			ups := eventsOf(f.pub, types.StatusUpdate)
			if len(ups) != len(tc.deltas) {
				t.Fatalf("updates: %+v", ups)
			}
			for i, u := range ups {
				if u.TextDelta != tc.deltas[i] || u.State != tc.states[i] {
					t.Fatalf("update %d: delta=%q state=%s", i, u.TextDelta, u.State)
				}
			}
			if out := eventsOf(f.pub, types.StatusComplete)[0].Output; out != tc.output {
				t.Fatalf("output=%q want %q", out, tc.output)
			}
			calls := generations(f.rt)
			want := "/no_think"
			if tc.reason {
				want = "/think"
			}
			if !strings.Contains(calls[0].Inputs.Prompt, "<|im_start|>system\n"+want+"<|im_end|>") {
				t.Fatalf("marker not rendered: %q", calls[0].Inputs.Prompt)
			}
			if calls[0].Opts.TopK != 20 || !calls[0].Opts.DoSample || calls[0].Opts.MaxNewTokens != 64 {
				t.Fatalf("sampling not taken from descriptor: %+v", calls[0].Opts)
			}
		})
	}
}

func TestKVCacheThreadedOnlyWhenEnabled(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "cached")
	for i := 0; i < 3; i++ {
		if err := f.c.Generate(testContext(t), userTurn("turn")); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
		if i == 0 {
			continue
		}
		calls := generations(f.rt)
		prev := calls[i-1]
		// The echo reply "You said: turn" is three tokens.
		want := replay.Cache{N: engine.CacheLen(prev.Opts.Cache) + len(prev.Inputs.IDs) + 3}
		if got, ok := calls[i].Opts.Cache.(replay.Cache); !ok || got != want {
			t.Fatalf("call %d cache=%v, want %v returned by call %d", i, calls[i].Opts.Cache, want, i-1)
		}
	}
	calls := generations(f.rt)
	if calls[0].Opts.Cache != nil || !calls[0].Opts.ReturnCache {
		t.Fatalf("first turn must start from an empty cache: %+v", calls[0].Opts)
	}
	if f.c.Status().CacheLen == 0 {
		t.Fatalf("cache not retained")
	}

	g := newFixture(t, nil)
	g.load(t, "plain")
	for i := 0; i < 2; i++ {
		if err := g.c.Generate(testContext(t), userTurn("turn")); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	for _, c := range generations(g.rt) {
		if c.Opts.Cache != nil || c.Opts.ReturnCache {
			t.Fatalf("cache threaded for a model without KV cache support: %+v", c.Opts)
		}
	}
}

func TestCacheReturnedIsPassedToNextTurn(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "cached")
	_ = f.c.Generate(testContext(t), userTurn("one"))
	stored := f.c.Status().CacheLen
	_ = f.c.Generate(testContext(t), userTurn("two"))
	calls := generations(f.rt)
	if calls[1].Opts.Cache == nil || calls[1].Opts.Cache.Len() != stored {
		t.Fatalf("cache passed %v, stored %d", calls[1].Opts.Cache, stored)
	}
}

func TestResetAndConfigureDropCache(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "cached")
	_ = f.c.Generate(testContext(t), userTurn("one"))
	f.c.Reset()
	if f.c.Status().CacheLen != 0 || !f.c.Status().Loaded {
		t.Fatalf("reset must drop the cache and keep handles: %+v", f.c.Status())
	}
	_ = f.c.Generate(testContext(t), userTurn("two"))
	if c := generations(f.rt)[1]; c.Opts.Cache != nil {
		t.Fatalf("cache survived reset: %v", c.Opts.Cache)
	}

	f.load(t, "cached")
	_ = f.c.Generate(testContext(t), userTurn("three"))
	calls := generations(f.rt)
	if calls[len(calls)-1].Opts.Cache != nil {
		t.Fatalf("cache survived setConfig")
	}
}

func TestGenerateBeforeLoad(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.c.Configure("plain", "", "")
	err := f.c.Generate(testContext(t), userTurn("hi"))
	if !IsNotLoaded(err) {
		t.Fatalf("expected not loaded, got %v", err)
	}
	if got := statusList(f.pub); got != "error" {
		t.Fatalf("statuses=%s", got)
	}
}

func TestGenerateRuntimeError(t *testing.T) {
	rt := replay.New()
	f := newFixture(t, rt)
	f.load(t, "plain")
	rt.GenerateErr = errors.New("bad sampling")
	err := f.c.Generate(testContext(t), userTurn("hi"))
	if !IsGeneration(err) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if got := statusList(f.pub); got != "start,error" {
		t.Fatalf("statuses=%s", got)
	}
	if !strings.Contains(f.c.Status().LastError, "bad sampling") {
		t.Fatalf("last error not recorded")
	}
}

func TestInterruptStopsWithoutComplete(t *testing.T) {
	rt := &replay.Runtime{Turns: [][]string{{"a", " b", " c", " d"}}}
	f := newFixture(t, rt)
	rt.Step = func(turn, i int) {
		if turn == 0 && i == 2 {
			f.c.Interrupt()
		}
	}
	f.load(t, "cached")
	before := testutil.ToFloat64(generationsTotal.WithLabelValues(outcomeInterrupted))

	if err := f.c.Generate(testContext(t), userTurn("hi")); err != nil {
		t.Fatalf("interrupt must not be an error: %v", err)
	}
	if got := statusList(f.pub); got != "start,update,update" {
		t.Fatalf("statuses=%s", got)
	}
	if f.c.Status().CacheLen != 0 {
		t.Fatalf("interrupted turn must not store a cache")
	}
	if after := testutil.ToFloat64(generationsTotal.WithLabelValues(outcomeInterrupted)); after != before+1 {
		t.Fatalf("interrupted counter %v -> %v", before, after)
	}

	f.pub.Reset()
	if err := f.c.Generate(testContext(t), userTurn("again")); err != nil {
		t.Fatalf("generate after interrupt: %v", err)
	}
	if len(eventsOf(f.pub, types.StatusComplete)) != 1 {
		t.Fatalf("interrupt leaked into the next generation: %s", statusList(f.pub))
	}
}

func TestConcurrentGenerateRejected(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	rt := &replay.Runtime{Turns: [][]string{{"slow", " reply"}}}
	rt.Step = func(turn, i int) {
		if turn == 0 && i == 0 {
			close(started)
			<-unblock
		}
	}
	f := newFixture(t, rt)
	f.load(t, "plain")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := f.c.Generate(testContext(t), userTurn("first")); err != nil {
			t.Errorf("first generate: %v", err)
		}
	}()
	<-started
	if !f.c.Busy() || !f.c.Status().Busy {
		t.Fatalf("expected busy while generating")
	}
	if err := f.c.Generate(testContext(t), userTurn("second")); !IsBusy(err) {
		t.Fatalf("expected busy, got %v", err)
	}
	if err := f.c.Load(testContext(t)); !IsBusy(err) {
		t.Fatalf("expected busy load, got %v", err)
	}
	close(unblock)
	wg.Wait()

	if n := len(eventsOf(f.pub, types.StatusError)); n != 2 {
		t.Fatalf("expected two busy error events, got %d", n)
	}
	if n := len(eventsOf(f.pub, types.StatusComplete)); n != 1 {
		t.Fatalf("first generation must still complete, got %d", n)
	}
	if len(generations(rt)) != 1 {
		t.Fatalf("second request must not reach the runtime")
	}
}

func TestConfigureDuringGenerationDefersClose(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	rt := &replay.Runtime{Turns: [][]string{{"x", " y"}}}
	rt.Step = func(turn, i int) {
		if turn == 0 && i == 0 {
			close(started)
			<-unblock
		}
	}
	f := newFixture(t, rt)
	f.load(t, "cached")
	done := make(chan error, 1)
	go func() { done <- f.c.Generate(testContext(t), userTurn("hi")) }()
	<-started
	_ = f.c.Configure("cached", "", "")
	f.c.mu.Lock()
	retired := len(f.c.retired)
	f.c.mu.Unlock()
	if retired != 1 {
		t.Fatalf("handles in use must be retired, not closed, got %d", retired)
	}
	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("generate: %v", err)
	}
	if f.c.Status().CacheLen != 0 {
		t.Fatalf("cache from the previous configuration must be dropped")
	}
	f.c.mu.Lock()
	retired = len(f.c.retired)
	f.c.mu.Unlock()
	if retired != 0 {
		t.Fatalf("retired handles not released")
	}
}

func TestHarmonyForwarding(t *testing.T) {
	turn := []string{
		"<|channel|>", "analysis", "<|message|>", "think", "<|end|>",
		"<|start|>", "assistant", "<|channel|>", "final", "<|message|>", "Hi", " there", "<|return|>",
	}
	f := newFixture(t, &replay.Runtime{Turns: [][]string{turn}})
	f.load(t, "harmony")
	if err := f.c.Generate(testContext(t), userTurn("hello")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	ups := eventsOf(f.pub, types.StatusUpdate)
	if len(ups) != 3 {
		t.Fatalf("updates: %+v", ups)
	}
	if ups[0].Channel != "analysis" || ups[0].State != types.StateThinking || *ups[0].MessageIndex != 0 || ups[0].TextDelta != "think" {
		t.Fatalf("analysis update: %+v", ups[0])
	}
	if ups[2].Channel != "final" || ups[2].State != types.StateAnswering || *ups[2].MessageIndex != 1 ||
		ups[2].TextDelta != " there" || ups[2].Output != "Hi there" {
		t.Fatalf("final update: %+v", ups[2])
	}
	done := eventsOf(f.pub, types.StatusComplete)[0]
	if done.Output != "Hi there" || done.NumTokens != len(turn) {
		t.Fatalf("complete: %+v", done)
	}
}

func TestHarmonyEchoFallsBackToFinalChannel(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "harmony")
	if err := f.c.Generate(testContext(t), userTurn("ping")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out := eventsOf(f.pub, types.StatusComplete)[0].Output; out != "You said: ping" {
		t.Fatalf("output=%q", out)
	}
}
