package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/engine/chattmpl"
	"chatd/internal/engine/replay"
	"chatd/internal/progress"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

// testTable covers the three dispatch shapes: plain, thinking with KV cache,
// and harmony.
func testTable() *registry.Table {
	return registry.New([]types.ModelDescriptor{
		{ID: "plain", Model: "org/plain", File: "plain.gguf", DataType: "q4", ChatTemplate: chattmpl.ChatML, SystemPrompt: "You are helpful."},
		{
			ID: "cached", Model: "org/cached", File: "cached.gguf", DataType: "q4f16", ChatTemplate: chattmpl.Qwen3,
			SupportsThinkingTag: true, UsesKVCache: true,
			Sampling: types.Sampling{DoSample: true, TopK: 20, Temperature: 0.7, MaxNewTokens: 64},
		},
		{ID: "harmony", Model: "org/oss", File: "oss.gguf", ChatTemplate: chattmpl.Harmony, ResponseFormat: types.FormatHarmony},
	})
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

type fixture struct {
	c   *Controller
	rt  *replay.Runtime
	pub *MemoryPublisher
	agg *progress.Aggregator
}

func newFixture(t *testing.T, rt *replay.Runtime) *fixture {
	t.Helper()
	if rt == nil {
		rt = replay.New()
	}
	pub := NewMemoryPublisher()
	agg := progress.New()
	clock := &stepClock{t: time.Unix(1_700_000_000, 0), step: 10 * time.Millisecond}
	c := New(Config{
		Registry:  testTable(),
		Engine:    rt,
		Publisher: pub,
		Progress:  agg,
		Logger:    zerolog.Nop(),
		Now:       clock.Now,
	})
	return &fixture{c: c, rt: rt, pub: pub, agg: agg}
}

// load configures id and loads it, failing the test on error.
func (f *fixture) load(t *testing.T, id string) {
	t.Helper()
	if err := f.c.Configure(id, "", ""); err != nil {
		t.Fatalf("configure %s: %v", id, err)
	}
	if err := f.c.Load(testContext(t)); err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	f.pub.Reset()
}

func userTurn(text string) types.GenerateRequest {
	return types.GenerateRequest{Messages: []types.ChatMessage{{ID: "u1", Role: types.RoleUser, Content: text}}}
}

func eventsOf(pub *MemoryPublisher, st types.Status) []types.Event {
	var out []types.Event
	for _, e := range pub.Events() {
		if e.Status == st {
			out = append(out, e)
		}
	}
	return out
}

func statusList(pub *MemoryPublisher) string {
	s := ""
	for i, st := range pub.Statuses() {
		if i > 0 {
			s += ","
		}
		s += string(st)
	}
	return s
}

// generations returns the prompted Generate calls, skipping warm-ups.
func generations(rt *replay.Runtime) []replay.Call {
	var out []replay.Call
	for _, c := range rt.Calls() {
		if c.Inputs.Prompt != "" {
			out = append(out, c)
		}
	}
	return out
}

// testContext returns a cancellable context that will be canceled by the test cleanup.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
